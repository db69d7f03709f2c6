package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

// CategoryValidator validates categories against the CoA validation document.
type CategoryValidator struct {
	categories    map[string]bool            // Set of top-level section names
	subcategories map[string]map[string]bool // Map of section -> set of names nested under it
}

// NewCategoryValidator creates a validator from the resolved CoA validation document.
func NewCategoryValidator(rs *rules.RuleSet) (*CategoryValidator, error) {
	root := rs.CoaValidation.Tree()
	if root == nil {
		return nil, fmt.Errorf("NewCategoryValidator: %w: no validation tree", rules.ErrInvalidDocument)
	}

	validator := &CategoryValidator{
		categories:    make(map[string]bool),
		subcategories: make(map[string]map[string]bool),
	}

	for _, section := range root.Children {
		if section.PrimaryName == "" {
			continue
		}
		sectionName := normalizeCategory(section.PrimaryName)
		validator.categories[sectionName] = true
		subs := make(map[string]bool)
		for _, c := range section.Children {
			c.Walk(func(n *rules.Node, depth int) bool {
				if n.PrimaryName != "" {
					subs[normalizeCategory(n.PrimaryName)] = true
				}
				return true
			})
		}
		validator.subcategories[sectionName] = subs
	}

	return validator, nil
}

// ValidateCategory checks a section name and, when given, a name nested under it.
// Returns nil if valid, error if invalid.
func (v *CategoryValidator) ValidateCategory(category, subcategory string) error {
	normCat := normalizeCategory(category)
	if !v.categories[normCat] {
		return fmt.Errorf("invalid category: %q (normalized: %q)", category, normCat)
	}
	if strings.TrimSpace(subcategory) == "" {
		return nil
	}

	subcats := v.subcategories[normCat]
	if !subcats[normalizeCategory(subcategory)] {
		validSubs := make([]string, 0, len(subcats))
		for s := range subcats {
			validSubs = append(validSubs, s)
		}
		sort.Strings(validSubs)
		return fmt.Errorf("invalid subcategory %q for category %q. Valid subcategories: %v",
			subcategory, category, validSubs)
	}
	return nil
}

// normalizeCategory converts to uppercase and trims whitespace for case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
