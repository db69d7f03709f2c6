// Package rulebased categorizes transactions from vendor, keyword and industry tables
// plus an amount heuristic. It always produces a result.
package rulebased

import (
	"math"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
)

const (
	TypeIncome  = "Income"
	TypeExpense = "Expense"
)

// Categorizer runs the rule cascade over a fixed set of tables. It is safe for concurrent use.
type Categorizer struct {
	tables *Tables
}

// New returns a Categorizer over tables, or over the compiled-in tables when tables is nil.
func New(tables *Tables) *Categorizer {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Categorizer{tables: tables}
}

// Categorize applies, in order: vendor rules, keyword rules, industry rules (when industry is set),
// the amount heuristic and the default fallback. The first hit wins.
func (c *Categorizer) Categorize(raw domain.RawTransactionRecord, industry *domain.Industry) domain.CategorizationResult {
	description := strings.ToLower(strings.TrimSpace(raw.Description))
	vendor := strings.TrimSpace(raw.VendorCustomerName)
	vendorLower := strings.ToLower(vendor)

	for _, r := range c.tables.VendorRules {
		if r.matches(vendorLower, description) {
			return c.fromRule(r, description, vendor, domain.SourceGlobalRule)
		}
	}
	for _, r := range c.tables.KeywordRules {
		if r.matches(description) {
			return c.fromRule(r, description, vendor, domain.SourceGlobalRule)
		}
	}
	if industry != nil {
		for _, r := range c.tables.industryTable(industry.Name) {
			if r.matches(description) {
				return c.fromRule(r, description, vendor, domain.SourceIndustryRule)
			}
		}
	}
	if amount, err := mapping.ResolveAmount(raw); err == nil && math.Abs(amount) > c.tables.Amount.ConsultAbove {
		if res, ok := c.byAmount(amount); ok {
			return res
		}
	}
	return c.fallback(description, vendor)
}

func (c *Categorizer) fromRule(r Rule, description, vendor string, source domain.PredictionSource) domain.CategorizationResult {
	return domain.CategorizationResult{
		SpecificCategory:   r.Category,
		BroadCategory:      r.Broad,
		Confidence:         r.Confidence,
		TransactionType:    InferTransactionType(description, r.Category),
		VendorCustomerName: vendor,
		PredictionSource:   source,
	}
}

func (c *Categorizer) byAmount(amount float64) (domain.CategorizationResult, bool) {
	a := c.tables.Amount
	abs := math.Abs(amount)
	switch {
	case abs > a.LargeAbove && amount > 0:
		return domain.CategorizationResult{
			SpecificCategory: "Large Revenue",
			BroadCategory:    domain.CategoryIncome,
			Confidence:       a.LargeConfidence,
			TransactionType:  TypeIncome,
			PredictionSource: domain.SourceGlobalRule,
		}, true
	case abs > a.LargeAbove:
		return domain.CategorizationResult{
			SpecificCategory: "Large Expense",
			BroadCategory:    domain.CategoryExpenses,
			Confidence:       a.LargeConfidence,
			TransactionType:  TypeExpense,
			PredictionSource: domain.SourceGlobalRule,
		}, true
	case abs < a.MinorBelow:
		txType := TypeExpense
		if amount > 0 {
			txType = TypeIncome
		}
		return domain.CategorizationResult{
			SpecificCategory: "Minor Fees & Adjustments",
			BroadCategory:    domain.CategoryExpenses,
			Confidence:       a.MinorConfidence,
			TransactionType:  txType,
			PredictionSource: domain.SourceGlobalRule,
		}, true
	}
	return domain.CategorizationResult{}, false
}

func (c *Categorizer) fallback(description, vendor string) domain.CategorizationResult {
	f := c.tables.Fallback
	if containsAny(description, f.IncomeWords) {
		return domain.CategorizationResult{
			SpecificCategory:   f.IncomeCategory,
			BroadCategory:      domain.CategoryIncome,
			Confidence:         f.Confidence,
			TransactionType:    TypeIncome,
			VendorCustomerName: vendor,
			PredictionSource:   domain.SourceGlobalRule,
		}
	}
	if containsAny(description, f.ExpenseWords) {
		return domain.CategorizationResult{
			SpecificCategory:   f.ExpenseCategory,
			BroadCategory:      domain.CategoryExpenses,
			Confidence:         f.Confidence,
			TransactionType:    TypeExpense,
			VendorCustomerName: vendor,
			PredictionSource:   domain.SourceGlobalRule,
		}
	}
	return domain.CategorizationResult{
		SpecificCategory:   f.UncategorizedCategory,
		BroadCategory:      domain.CategoryExpenses,
		Confidence:         f.UncategorizedConfidence,
		TransactionType:    TypeExpense,
		VendorCustomerName: vendor,
		PredictionSource:   domain.SourceUnknown,
	}
}

// InferTransactionType reads Income or Expense from a category name, then from description wording.
// It defaults to Expense.
func InferTransactionType(description, category string) string {
	switch {
	case containsAny(category, []string{"Income", "Revenue", "Refund"}):
		return TypeIncome
	case containsAny(category, []string{"Expense", "Fee", "Cost"}):
		return TypeExpense
	}
	d := strings.ToLower(description)
	switch {
	case containsAny(d, []string{"payment received", "deposit", "credit"}):
		return TypeIncome
	case containsAny(d, []string{"payment sent", "debit", "charge"}):
		return TypeExpense
	}
	return TypeExpense
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
