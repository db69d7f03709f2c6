package rulebased

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

//go:embed tables.yaml
var defaultTables []byte

// Rule assigns Category when any Match phrase starts a word of the text.
type Rule struct {
	Match      []string                  `yaml:"match"`
	Category   string                    `yaml:"category"`
	Broad      domain.AccountingCategory `yaml:"broad"`
	Confidence float64                   `yaml:"confidence"`
}

func (r Rule) matches(texts ...string) bool {
	for _, m := range r.Match {
		m = strings.ToLower(m)
		for _, t := range texts {
			if containsPhrase(t, m) {
				return true
			}
		}
	}
	return false
}

// shortPhrase is the length below which a phrase must match a whole word, so acronyms
// such as "att" or "irs" do not match the start of longer words.
const shortPhrase = 4

// containsPhrase reports whether phrase occurs in text at the start of a word, so "chase"
// does not match "purchase". Longer phrases accept any suffix ("travel" matches "traveling");
// short ones must end the word, allowing a plural "s".
func containsPhrase(text, phrase string) bool {
	if text == "" || phrase == "" {
		return false
	}
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		if i == 0 || !isWordByte(text[i-1]) {
			if len(phrase) >= shortPhrase {
				return true
			}
			end := i + len(phrase)
			if end < len(text) && text[end] == 's' {
				end++
			}
			if end == len(text) || !isWordByte(text[end]) {
				return true
			}
		}
		start = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}

type AmountRules struct {
	ConsultAbove    float64 `yaml:"consult_above"`
	LargeAbove      float64 `yaml:"large_above"`
	LargeConfidence float64 `yaml:"large_confidence"`
	MinorBelow      float64 `yaml:"minor_below"`
	MinorConfidence float64 `yaml:"minor_confidence"`
}

type FallbackRules struct {
	IncomeWords             []string `yaml:"income_words"`
	IncomeCategory          string   `yaml:"income_category"`
	ExpenseWords            []string `yaml:"expense_words"`
	ExpenseCategory         string   `yaml:"expense_category"`
	Confidence              float64  `yaml:"confidence"`
	UncategorizedCategory   string   `yaml:"uncategorized_category"`
	UncategorizedConfidence float64  `yaml:"uncategorized_confidence"`
}

// Tables holds every rule table the categorizer reads.
type Tables struct {
	VendorRules     []Rule            `yaml:"vendor_rules"`
	KeywordRules    []Rule            `yaml:"keyword_rules"`
	DefaultIndustry string            `yaml:"default_industry"`
	IndustryRules   map[string][]Rule `yaml:"industry_rules"`
	Amount          AmountRules       `yaml:"amount"`
	Fallback        FallbackRules     `yaml:"fallback"`
}

// ParseTables decodes and checks a YAML rule table document.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("ParseTables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("ParseTables: %w", err)
	}
	return &t, nil
}

// DefaultTables returns the compiled-in rule tables.
func DefaultTables() *Tables {
	t, err := ParseTables(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("rulebased: compiled-in tables are invalid: %v", err))
	}
	return t
}

// LoadTables reads rule tables from path, or returns the compiled-in tables when path is empty.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTables: reading %s: %w", path, err)
	}
	return ParseTables(data)
}

func (t *Tables) validate() error {
	check := func(table string, rules []Rule) error {
		for i, r := range rules {
			if r.Category == "" || len(r.Match) == 0 {
				return fmt.Errorf("%s rule %d: category and match are required", table, i)
			}
			if _, ok := domain.ParseAccountingCategory(string(r.Broad)); !ok {
				return fmt.Errorf("%s rule %d: unknown broad category %q", table, i, r.Broad)
			}
			if r.Confidence < 0 || r.Confidence > 1 {
				return fmt.Errorf("%s rule %d: confidence %v out of range", table, i, r.Confidence)
			}
		}
		return nil
	}
	if err := check("vendor", t.VendorRules); err != nil {
		return err
	}
	if err := check("keyword", t.KeywordRules); err != nil {
		return err
	}
	for name, rules := range t.IndustryRules {
		if err := check("industry "+name, rules); err != nil {
			return err
		}
	}
	if t.Fallback.UncategorizedCategory == "" {
		return fmt.Errorf("fallback: uncategorized_category is required")
	}
	return nil
}

// industryTable finds the rules for an industry by name, ignoring case, falling back to the default industry.
func (t *Tables) industryTable(name string) []Rule {
	for key, rules := range t.IndustryRules {
		if strings.EqualFold(key, strings.TrimSpace(name)) {
			return rules
		}
	}
	return t.IndustryRules[t.DefaultIndustry]
}
