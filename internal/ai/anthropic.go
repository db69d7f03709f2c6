package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicCategorizer asks a Claude model for a category.
type AnthropicCategorizer struct {
	model   string
	catalog []string
	send    func(ctx context.Context, system, prompt string) (string, error)
}

// NewAnthropicCategorizer returns a categorizer that is not ready when apiKey is empty.
func NewAnthropicCategorizer(apiKey, model string, catalog []string) *AnthropicCategorizer {
	if model == "" {
		model = DefaultAnthropicModel
	}
	a := &AnthropicCategorizer{model: model, catalog: catalog}
	if apiKey == "" {
		return a
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	a.send = func(ctx context.Context, system, prompt string) (string, error) {
		message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(a.model),
			MaxTokens:   512,
			Temperature: anthropic.Float(0.2),
			System:      []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", err
		}
		var text strings.Builder
		for _, block := range message.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return text.String(), nil
	}
	return a
}

func (a *AnthropicCategorizer) Ready() bool {
	return a != nil && a.send != nil
}

func (a *AnthropicCategorizer) Categorize(ctx context.Context, description, industry string) (*Guess, error) {
	if !a.Ready() {
		return nil, ErrNotReady
	}
	raw, err := a.send(ctx, BuildInstruction(industry, a.catalog), BuildPrompt(description))
	if err != nil {
		return nil, fmt.Errorf("AnthropicCategorizer.Categorize: claude API call: %w", err)
	}
	guess, err := ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("AnthropicCategorizer.Categorize: %w", err)
	}
	return guess, nil
}
