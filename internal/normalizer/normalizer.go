// Package normalizer resolves free-text category names to canonical chart-of-accounts entries.
package normalizer

import (
	"sort"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

var (
	incomeKeywords    = []string{"income", "revenue", "sale", "service fee", "interest income", "reward"}
	expenseKeywords   = []string{"expense", "cost", "supplies", "payroll", "marketing", "insurance", "rent", "utilit", "advertis", "amortization", "depreciation", "cogs", "cost of goods sold"}
	assetKeywords     = []string{"asset", "bank", "receivable", "equipment", "cash", "deposit", "furniture", "goodwill", "covenant", "improvement"}
	liabilityKeywords = []string{"liabilit", "payable", "loan", "debt", "credit card", "pension"}
	equityKeywords    = []string{"equity", "retained earning", "capital", "stock", "net income", "shareholder"}
)

// InferBroadCategory guesses a broad category from keywords in a name.
// Income is checked first, then Expenses, Assets, Liabilities and Equity; an exact
// broad category name is the last resort.
func InferBroadCategory(name string) domain.AccountingCategory {
	lower := strings.ToLower(name)

	if containsAny(lower, incomeKeywords) {
		return domain.CategoryIncome
	}
	if containsAny(lower, expenseKeywords) ||
		(strings.Contains(lower, "fee") && !strings.Contains(lower, "service fee")) ||
		(strings.Contains(lower, "charge") && !strings.Contains(lower, "service charge")) {
		return domain.CategoryExpenses
	}
	if containsAny(lower, assetKeywords) {
		return domain.CategoryAssets
	}
	if containsAny(lower, liabilityKeywords) {
		return domain.CategoryLiabilities
	}
	if containsAny(lower, equityKeywords) {
		return domain.CategoryEquity
	}

	if c, ok := domain.ParseAccountingCategory(lower); ok {
		return c
	}
	return domain.CategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Normalize resolves a category string against the alternate-names tree of rs.
// A tree hit returns the node's primary name with the broad category inferred from it,
// or from the nearest ancestor that has one. Without a usable hit the trimmed input (or the
// raw input when it is only whitespace) is returned with a keyword-inferred broad category. The result depends only on the input
// and the rule snapshot.
func Normalize(category string, rs *rules.RuleSet) domain.NormalizedCategory {
	trimmed := strings.TrimSpace(category)

	if name, broad, ok := findInTree(rs.AlternateNames(), trimmed); ok {
		if broad == domain.CategoryUnknown {
			broad = InferBroadCategory(name)
		}
		if broad != domain.CategoryUnknown {
			return domain.NormalizedCategory{SpecificName: name, BroadCategory: broad}
		}
	}

	name := trimmed
	if name == "" {
		// Whitespace-only input keeps its raw form.
		name = category
	}
	return domain.NormalizedCategory{
		SpecificName:  name,
		BroadCategory: InferBroadCategory(trimmed),
	}
}

// findInTree is the single recursive matcher over the alternate-names tree.
func findInTree(root *rules.Node, needle string) (string, domain.AccountingCategory, bool) {
	if root == nil || needle == "" {
		return "", domain.CategoryUnknown, false
	}
	var walk func(n *rules.Node, inherited domain.AccountingCategory) (string, domain.AccountingCategory, bool)
	walk = func(n *rules.Node, inherited domain.AccountingCategory) (string, domain.AccountingCategory, bool) {
		broad := inherited
		if n.PrimaryName != "" {
			if c := InferBroadCategory(n.PrimaryName); c != domain.CategoryUnknown {
				broad = c
			}
			if n.Matches(needle) {
				return n.PrimaryName, broad, true
			}
		}
		for _, c := range n.Children {
			if name, b, ok := walk(c, broad); ok {
				return name, b, true
			}
		}
		return "", domain.CategoryUnknown, false
	}
	return walk(root, domain.CategoryUnknown)
}

// CatalogEntry is one selectable category.
type CatalogEntry struct {
	SpecificName  string                    `json:"specificName"`
	BroadCategory domain.AccountingCategory `json:"broadCategory"`
	IsSubCategory bool                      `json:"isSubCategory"`
}

// ListAllSpecificNames flattens the alternate-names tree into a deduplicated catalog sorted by name.
// Only the top-level nodes of the tree are reported with IsSubCategory false.
func ListAllSpecificNames(rs *rules.RuleSet) []CatalogEntry {
	root := rs.AlternateNames()
	if root == nil {
		return nil
	}

	index := make(map[string]int)
	var out []CatalogEntry

	var walk func(n *rules.Node, inherited domain.AccountingCategory, top bool)
	walk = func(n *rules.Node, inherited domain.AccountingCategory, top bool) {
		broad := inherited
		if n.PrimaryName != "" {
			if c := InferBroadCategory(n.PrimaryName); c != domain.CategoryUnknown {
				broad = c
			}
			if i, seen := index[n.PrimaryName]; seen {
				if out[i].BroadCategory == domain.CategoryUnknown && broad != domain.CategoryUnknown {
					out[i].BroadCategory = broad
				}
			} else {
				index[n.PrimaryName] = len(out)
				out = append(out, CatalogEntry{
					SpecificName:  n.PrimaryName,
					BroadCategory: broad,
					IsSubCategory: !top,
				})
			}
		}
		for _, c := range n.Children {
			// List items stay at their list's level.
			walk(c, broad, top && n.Seq)
		}
	}
	for _, c := range root.Children {
		walk(c, domain.CategoryUnknown, true)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].SpecificName) < strings.ToLower(out[j].SpecificName)
	})
	return out
}
