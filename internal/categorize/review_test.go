package categorize

import (
	"errors"
	"math"
	"testing"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

func TestApplyOverride(t *testing.T) {
	rs, err := rules.DefaultRuleSet()
	if err != nil {
		t.Fatal(err)
	}
	tx := domain.Transaction{
		SpecificCategory: "Uncategorized",
		BroadCategory:    domain.CategoryUnknown,
		ConfidenceScore:  0.1,
		IsFlagged:        true,
	}

	nc, err := ApplyOverride(&tx, " office supply ", rs)
	if err != nil {
		t.Fatalf("ApplyOverride failed: %v", err)
	}
	if nc.SpecificName != "Office Supplies" || nc.BroadCategory != domain.CategoryExpenses {
		t.Errorf("unexpected normalized category %+v", nc)
	}
	if tx.UserOverrideCategory != "Office Supplies" || tx.IsFlagged {
		t.Errorf("override not applied: %+v", tx)
	}
	if tx.EffectiveCategory() != "Office Supplies" {
		t.Errorf("EffectiveCategory = %q", tx.EffectiveCategory())
	}

	if _, err := ApplyOverride(&tx, "Gizmo", rs); !errors.Is(err, ErrInvalidOverride) {
		t.Errorf("Expected ErrInvalidOverride, got %v", err)
	}
	if tx.UserOverrideCategory != "Office Supplies" {
		t.Error("Expected a rejected override to leave the transaction unchanged")
	}

	if _, err := ApplyOverride(&tx, "", rs); err != nil {
		t.Fatalf("clearing failed: %v", err)
	}
	if tx.UserOverrideCategory != "" || tx.EffectiveCategory() != "Uncategorized" {
		t.Errorf("Expected the override to be cleared, got %+v", tx)
	}
}

func TestSummarize(t *testing.T) {
	txs := []domain.Transaction{
		{BroadCategory: domain.CategoryExpenses, ConfidenceScore: 0.8, PredictionSource: domain.SourceGlobalRule},
		{BroadCategory: domain.CategoryExpenses, ConfidenceScore: 0.95, PredictionSource: domain.SourceBookHistory, UserOverrideCategory: "Rent Expense"},
		{BroadCategory: domain.CategoryUnknown, ConfidenceScore: 0.1, PredictionSource: domain.SourceUnknown, IsFlagged: true},
		{BroadCategory: domain.CategoryIncome, ConfidenceScore: 0.55, PredictionSource: domain.SourceGlobalRule, IsFlagged: true},
	}

	s := Summarize(txs)
	if s.Total != 4 || s.Flagged != 2 || s.Overridden != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.BySource[domain.SourceGlobalRule] != 2 || s.ByBroadCategory[domain.CategoryExpenses] != 2 {
		t.Errorf("unexpected breakdown %+v", s)
	}
	if math.Abs(s.AverageConfidence-0.6) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want 0.6", s.AverageConfidence)
	}

	if empty := Summarize(nil); empty.Total != 0 || empty.AverageConfidence != 0 {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
