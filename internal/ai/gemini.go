package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiCategorizer asks a Gemini model for a category. Credentials come from the
// environment the genai client reads (GOOGLE_API_KEY, or Vertex AI project settings).
type GeminiCategorizer struct {
	model    string
	catalog  []string
	generate func(ctx context.Context, prompt string) (string, error)
}

// NewGeminiCategorizer creates a genai client. catalog lists the category names offered to the model.
func NewGeminiCategorizer(ctx context.Context, model string, catalog []string) (*GeminiCategorizer, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiCategorizer: create genai client: %w", err)
	}

	g := &GeminiCategorizer{model: model, catalog: catalog}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](0.2),
			TopP:        genai.Ptr[float32](0.9),
			TopK:        genai.Ptr[float32](32),
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return g, nil
}

func (g *GeminiCategorizer) Ready() bool {
	return g != nil && g.generate != nil
}

func (g *GeminiCategorizer) Categorize(ctx context.Context, description, industry string) (*Guess, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}
	prompt := BuildInstruction(industry, g.catalog) + "\n" + BuildPrompt(description)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("GeminiCategorizer.Categorize: generate content: %w", err)
	}
	guess, err := ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("GeminiCategorizer.Categorize: %w", err)
	}
	return guess, nil
}
