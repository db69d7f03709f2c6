package rulebased

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

func TestCategorize(t *testing.T) {
	c := New(nil)
	tests := []struct {
		name       string
		raw        domain.RawTransactionRecord
		industry   *domain.Industry
		category   string
		broad      domain.AccountingCategory
		confidence float64
		source     domain.PredictionSource
		txType     string
	}{
		{
			name:     "vendor in description",
			raw:      domain.RawTransactionRecord{Description: "Office Depot Purchase", Amount: "-45.67"},
			category: "Office Supplies", broad: domain.CategoryExpenses, confidence: 0.8,
			source: domain.SourceGlobalRule, txType: TypeExpense,
		},
		{
			name:     "vendor name column",
			raw:      domain.RawTransactionRecord{Description: "Monthly statement", VendorCustomerName: "Chase"},
			category: "Interest Income", broad: domain.CategoryIncome, confidence: 0.9,
			source: domain.SourceGlobalRule, txType: TypeIncome,
		},
		{
			name:     "keyword",
			raw:      domain.RawTransactionRecord{Description: "Monthly rent January"},
			category: "Rent Expense", broad: domain.CategoryExpenses, confidence: 0.9,
			source: domain.SourceGlobalRule, txType: TypeExpense,
		},
		{
			name:     "industry table",
			raw:      domain.RawTransactionRecord{Description: "AWS hosting invoice"},
			industry: &domain.Industry{Name: "technology"},
			category: "Web Hosting", broad: domain.CategoryExpenses, confidence: 0.85,
			source: domain.SourceIndustryRule, txType: TypeExpense,
		},
		{
			name:     "unknown industry uses default table",
			raw:      domain.RawTransactionRecord{Description: "Freelance design work"},
			industry: &domain.Industry{Name: "Agriculture"},
			category: "Contractor Payments", broad: domain.CategoryExpenses, confidence: 0.8,
			source: domain.SourceIndustryRule, txType: TypeExpense,
		},
		{
			name:     "large positive amount",
			raw:      domain.RawTransactionRecord{Description: "Quarterly xyz", Amount: "25,000"},
			category: "Large Revenue", broad: domain.CategoryIncome, confidence: 0.6,
			source: domain.SourceGlobalRule, txType: TypeIncome,
		},
		{
			name:     "large negative split amount",
			raw:      domain.RawTransactionRecord{Description: "Quarterly xyz", DebitAmount: "25000"},
			category: "Large Expense", broad: domain.CategoryExpenses, confidence: 0.6,
			source: domain.SourceGlobalRule, txType: TypeExpense,
		},
		{
			name:     "income wording",
			raw:      domain.RawTransactionRecord{Description: "Cash deposit"},
			category: "General Income", broad: domain.CategoryIncome, confidence: 0.5,
			source: domain.SourceGlobalRule, txType: TypeIncome,
		},
		{
			name:     "expense wording",
			raw:      domain.RawTransactionRecord{Description: "ATM withdrawal"},
			category: "General Expenses", broad: domain.CategoryExpenses, confidence: 0.5,
			source: domain.SourceGlobalRule, txType: TypeExpense,
		},
		{
			name:     "keyword with suffix",
			raw:      domain.RawTransactionRecord{Description: "Business traveling costs"},
			category: "Travel Expenses", broad: domain.CategoryExpenses, confidence: 0.8,
			source: domain.SourceGlobalRule, txType: TypeExpense,
		},
		{
			name:     "past tense keyword",
			raw:      domain.RawTransactionRecord{Description: "Refunded order"},
			category: "Refunds & Returns", broad: domain.CategoryIncome, confidence: 0.75,
			source: domain.SourceGlobalRule, txType: TypeIncome,
		},
		{
			name:     "irregular plural keyword",
			raw:      domain.RawTransactionRecord{Description: "Staff salaries"},
			category: "Salary Income", broad: domain.CategoryIncome, confidence: 0.8,
			source: domain.SourceGlobalRule, txType: TypeIncome,
		},
		{
			name:     "consultancy vendor",
			raw:      domain.RawTransactionRecord{Description: "Consultancy retainer"},
			category: "Professional Services", broad: domain.CategoryExpenses, confidence: 0.8,
			source: domain.SourceGlobalRule, txType: TypeExpense,
		},
		{
			name:     "nothing matches",
			raw:      domain.RawTransactionRecord{Description: "Zzz", Amount: "5000"},
			category: "Uncategorized Expense", broad: domain.CategoryExpenses, confidence: 0.3,
			source: domain.SourceUnknown, txType: TypeExpense,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Categorize(tt.raw, tt.industry)
			if got.SpecificCategory != tt.category || got.BroadCategory != tt.broad {
				t.Errorf("category = %q/%q, want %q/%q", got.SpecificCategory, got.BroadCategory, tt.category, tt.broad)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.confidence)
			}
			if got.PredictionSource != tt.source {
				t.Errorf("source = %q, want %q", got.PredictionSource, tt.source)
			}
			if got.TransactionType != tt.txType {
				t.Errorf("transactionType = %q, want %q", got.TransactionType, tt.txType)
			}
		})
	}
}

func TestCategorize_MinorAmountNeedsLowerConsultThreshold(t *testing.T) {
	tables := DefaultTables()
	raw := domain.RawTransactionRecord{Description: "Zzz", Amount: "0.45"}

	if got := New(tables).Categorize(raw, nil); got.SpecificCategory != "Uncategorized Expense" {
		t.Errorf("Expected the heuristic to be skipped, got %q", got.SpecificCategory)
	}

	tables.Amount.ConsultAbove = 0
	got := New(tables).Categorize(raw, nil)
	if got.SpecificCategory != "Minor Fees & Adjustments" || got.Confidence != 0.7 || got.TransactionType != TypeIncome {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestInferTransactionType(t *testing.T) {
	tests := []struct {
		description, category, want string
	}{
		{"", "Sales Revenue", TypeIncome},
		{"", "Refunds & Returns", TypeIncome},
		{"", "Bank Fees", TypeExpense},
		{"store credit applied", "Equipment", TypeIncome},
		{"card charge", "Equipment", TypeExpense},
		{"", "Equipment", TypeExpense},
	}
	for _, tt := range tests {
		t.Run(tt.category+"/"+tt.description, func(t *testing.T) {
			if got := InferTransactionType(tt.description, tt.category); got != tt.want {
				t.Errorf("InferTransactionType(%q, %q) = %q, want %q", tt.description, tt.category, got, tt.want)
			}
		})
	}
}

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	content := `vendor_rules:
  - match: [acme]
    category: Widgets
    broad: Expenses
    confidence: 0.9
fallback:
  uncategorized_category: Other
  uncategorized_confidence: 0.2
`
	if err := os.WriteFile(good, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	tables, err := LoadTables(good)
	if err != nil {
		t.Fatalf("LoadTables failed: %v", err)
	}
	got := New(tables).Categorize(domain.RawTransactionRecord{Description: "ACME order"}, nil)
	if got.SpecificCategory != "Widgets" {
		t.Errorf("Expected custom table to apply, got %+v", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("vendor_rules:\n  - match: [x]\n    category: X\n    broad: Stuff\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTables(bad); err == nil {
		t.Error("Expected an error for an unknown broad category")
	}

	if _, err := LoadTables(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text, phrase string
		want         bool
	}{
		{"office depot purchase", "chase", false},
		{"chase card payment", "chase", true},
		{"monthly service fees", "fee", true},
		{"pay at&t bill", "at&t", true},
		{"attorney retainer", "att", false},
		{"las vegas trip", "gas", false},
		{"gas", "gas", true},
		{"", "gas", false},
		{"business traveling costs", "travel", true},
		{"refunded order", "refund", true},
		{"rental car", "rent", true},
		{"feedback survey", "fee", false},
		{"first class", "irs", false},
		{"irs payment", "irs", true},
	}
	for _, tt := range tests {
		if got := containsPhrase(tt.text, tt.phrase); got != tt.want {
			t.Errorf("containsPhrase(%q, %q) = %v, want %v", tt.text, tt.phrase, got, tt.want)
		}
	}
}
