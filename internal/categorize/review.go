package categorize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

// ErrInvalidOverride is returned when an override does not resolve to a known section of the chart of accounts.
var ErrInvalidOverride = errors.New("invalid category override")

// ApplyOverride records a reviewer's category on tx. An empty category clears the override.
// The category must normalize to a broad category that the CoA validation document lists.
func ApplyOverride(tx *domain.Transaction, category string, rs *rules.RuleSet) (domain.NormalizedCategory, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		tx.UserOverrideCategory = ""
		return domain.NormalizedCategory{SpecificName: tx.SpecificCategory, BroadCategory: tx.BroadCategory}, nil
	}

	nc := normalizer.Normalize(category, rs)
	if nc.BroadCategory == domain.CategoryUnknown {
		return nc, fmt.Errorf("ApplyOverride: %w: %q has no broad category", ErrInvalidOverride, category)
	}
	validator, err := normalizer.NewCategoryValidator(rs)
	if err != nil {
		return nc, fmt.Errorf("ApplyOverride: %w", err)
	}
	if err := validator.ValidateCategory(string(nc.BroadCategory), ""); err != nil {
		return nc, fmt.Errorf("ApplyOverride: %w: %v", ErrInvalidOverride, err)
	}

	tx.UserOverrideCategory = nc.SpecificName
	tx.IsFlagged = false
	return nc, nil
}

// Summary describes a categorized batch.
type Summary struct {
	Total             int                               `json:"total"`
	BySource          map[domain.PredictionSource]int   `json:"bySource"`
	ByBroadCategory   map[domain.AccountingCategory]int `json:"byBroadCategory"`
	AverageConfidence float64                           `json:"averageConfidence"`
	Flagged           int                               `json:"flagged"`
	Overridden        int                               `json:"overridden"`
}

// Summarize counts a batch by source and broad category.
func Summarize(txs []domain.Transaction) Summary {
	s := Summary{
		Total:           len(txs),
		BySource:        make(map[domain.PredictionSource]int),
		ByBroadCategory: make(map[domain.AccountingCategory]int),
	}
	var sum float64
	for _, tx := range txs {
		s.BySource[tx.PredictionSource]++
		s.ByBroadCategory[tx.BroadCategory]++
		sum += tx.ConfidenceScore
		if tx.IsFlagged {
			s.Flagged++
		}
		if tx.UserOverrideCategory != "" {
			s.Overridden++
		}
	}
	if len(txs) > 0 {
		s.AverageConfidence = sum / float64(len(txs))
	}
	return s
}
