// Package ai holds the model-backed fallback categorizers used when rules and history are not enough.
package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

var (
	// ErrNotReady is returned by a categorizer that has no client or model to call.
	ErrNotReady = errors.New("ai categorizer not ready")
	// ErrMalformedResponse is returned when a model reply lacks a category or a numeric confidence.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Guess is a model's answer before normalization against the rule set.
type Guess struct {
	Category           string  `json:"category"`
	Confidence         float64 `json:"confidence"`
	TransactionType    string  `json:"transactionType,omitempty"`
	VendorCustomerName string  `json:"vendorCustomerName,omitempty"`
	SuggestedCategory  string  `json:"suggestedCategory,omitempty"`
}

// Categorizer is a fallback that guesses a category for a transaction description.
// industry may be empty. Implementations return an error on transport failure, timeout
// or an unusable reply; they never invent a result.
type Categorizer interface {
	Categorize(ctx context.Context, description, industry string) (*Guess, error)
	Ready() bool
}

// Resolve normalizes a guess against rs into an AI-sourced result.
func Resolve(g *Guess, rs *rules.RuleSet) domain.CategorizationResult {
	primary := normalizer.Normalize(g.Category, rs)
	res := domain.CategorizationResult{
		SpecificCategory:   primary.SpecificName,
		BroadCategory:      primary.BroadCategory,
		Confidence:         g.Confidence,
		TransactionType:    strings.TrimSpace(g.TransactionType),
		VendorCustomerName: strings.TrimSpace(g.VendorCustomerName),
		PredictionSource:   domain.SourceAIModel,
	}
	if s := strings.TrimSpace(g.SuggestedCategory); s != "" {
		suggested := normalizer.Normalize(s, rs)
		res.SuggestedSpecificCategory = suggested.SpecificName
		res.SuggestedBroadCategory = suggested.BroadCategory
	}
	return res.Sanitize()
}
