package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

// RuleType names one of the three rule documents.
type RuleType string

const (
	AccountingRules   RuleType = "accountingRules"
	CoaValidation     RuleType = "coaValidation"
	CoaAlternateNames RuleType = "coaAlternateNames"
)

// RuleTypes lists the rule documents in resolution order.
var RuleTypes = []RuleType{AccountingRules, CoaValidation, CoaAlternateNames}

var (
	// ErrUnknownRuleType is returned for rule type names outside RuleTypes.
	ErrUnknownRuleType = errors.New("unknown rule type")
	// ErrInvalidDocument is returned when a document decodes but lacks its root section.
	ErrInvalidDocument = errors.New("invalid rule document")
)

// ParseRuleType resolves a rule type name case-insensitively.
func ParseRuleType(s string) (RuleType, error) {
	for _, t := range RuleTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRuleType, s)
}

// Document is a decoded rule document.
type Document interface {
	Validate() error
}

// AccountingRulesDocument is the general accounting rules document.
type AccountingRulesDocument struct {
	AccountingRules *AccountingRulesBody `yaml:"accounting_rules" json:"accounting_rules"`
}

// AccountingRulesBody holds the sections the matchers read.
type AccountingRulesBody struct {
	Metadata         Metadata        `yaml:"metadata" json:"metadata"`
	BusinessContext  BusinessContext `yaml:"business_context_classification,omitempty" json:"business_context_classification,omitempty"`
	FixedAssets      FixedAssets     `yaml:"fixed_assets" json:"fixed_assets"`
	Payroll          Payroll         `yaml:"payroll" json:"payroll"`
	Insurance        CategoryGroup   `yaml:"insurance" json:"insurance"`
	LiabilitiesLoans CategoryGroup   `yaml:"liabilities_loans" json:"liabilities_loans"`
}

type Metadata struct {
	Version     string `yaml:"version" json:"version"`
	CreatedDate string `yaml:"created_date,omitempty" json:"created_date,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Market      string `yaml:"market,omitempty" json:"market,omitempty"`
	Currency    string `yaml:"currency,omitempty" json:"currency,omitempty"`
}

type BusinessContext struct {
	AIModelConfig    map[string]ModelLayer `yaml:"ai_model_config,omitempty" json:"ai_model_config,omitempty"`
	BusinessProfiles []BusinessProfile     `yaml:"business_profiles,omitempty" json:"business_profiles,omitempty"`
}

type ModelLayer struct {
	Name                string   `yaml:"name" json:"name"`
	ModelType           string   `yaml:"model_type,omitempty" json:"model_type,omitempty"`
	Input               []string `yaml:"input,omitempty" json:"input,omitempty"`
	Output              string   `yaml:"output,omitempty" json:"output,omitempty"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
}

type BusinessProfile struct {
	Profile    string   `yaml:"profile" json:"profile"`
	Keywords   []string `yaml:"keywords" json:"keywords"`
	NAICSCodes []string `yaml:"naics_codes,omitempty" json:"naics_codes,omitempty"`
}

type FixedAssets struct {
	Rules      FixedAssetRules `yaml:"rules" json:"rules"`
	Categories []RuleCategory  `yaml:"categories,omitempty" json:"categories,omitempty"`
}

type FixedAssetRules struct {
	ThresholdValidation struct {
		DefaultThreshold float64 `yaml:"default_threshold" json:"default_threshold"`
	} `yaml:"threshold_validation" json:"threshold_validation"`
}

type Payroll struct {
	CoreKeywords []string `yaml:"core_keywords" json:"core_keywords"`
}

type CategoryGroup struct {
	Categories []RuleCategory `yaml:"categories,omitempty" json:"categories,omitempty"`
}

// RuleCategory is one keyword rule. Industry "General" marks a rule that applies to every business.
type RuleCategory struct {
	Name     string   `yaml:"name,omitempty" json:"name,omitempty"`
	Type     string   `yaml:"type,omitempty" json:"type,omitempty"`
	Industry string   `yaml:"industry,omitempty" json:"industry,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Label is the category name the rule assigns.
func (c RuleCategory) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

func (d *AccountingRulesDocument) Validate() error {
	if d == nil || d.AccountingRules == nil {
		return fmt.Errorf("%w: missing accounting_rules section", ErrInvalidDocument)
	}
	return nil
}

// CoaDocument is the shape shared by the CoA validation and alternate-names documents.
type CoaDocument struct {
	ChartOfAccountsValidation *CoaBody `yaml:"chart_of_accounts_validation" json:"chart_of_accounts_validation"`
}

type CoaBody struct {
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Categories  *Node  `yaml:"categories" json:"categories"`
}

func (d *CoaDocument) Validate() error {
	if d == nil || d.ChartOfAccountsValidation == nil {
		return fmt.Errorf("%w: missing chart_of_accounts_validation section", ErrInvalidDocument)
	}
	if d.ChartOfAccountsValidation.Categories == nil {
		return fmt.Errorf("%w: missing categories tree", ErrInvalidDocument)
	}
	return nil
}

// Tree returns the categories tree, or nil for an invalid document.
func (d *CoaDocument) Tree() *Node {
	if d == nil || d.ChartOfAccountsValidation == nil {
		return nil
	}
	return d.ChartOfAccountsValidation.Categories
}

// Decode parses a rule document of the given type. JSON input is detected by a leading brace,
// anything else is read as YAML. The decoded document is validated.
func Decode(t RuleType, data []byte) (Document, error) {
	var doc Document
	switch t {
	case AccountingRules:
		doc = &AccountingRulesDocument{}
	case CoaValidation, CoaAlternateNames:
		doc = &CoaDocument{}
	default:
		return nil, fmt.Errorf("Decode: %w: %q", ErrUnknownRuleType, t)
	}

	trimmed := bytes.TrimSpace(data)
	var err error
	if bytes.HasPrefix(trimmed, []byte("{")) {
		err = json.Unmarshal(trimmed, doc)
	} else {
		err = yaml.Unmarshal(trimmed, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("Decode: parse %s: %w", t, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("Decode: %s: %w", t, err)
	}
	return doc, nil
}

// EncodeJSON renders a document as JSON, preserving tree order.
func EncodeJSON(doc Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("EncodeJSON: %w", err)
	}
	return b, nil
}

// EncodeYAML renders a document as YAML, preserving tree order.
func EncodeYAML(doc Document) ([]byte, error) {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("EncodeYAML: %w", err)
	}
	return b, nil
}

func typeMatches(t RuleType, doc Document) bool {
	switch doc.(type) {
	case *AccountingRulesDocument:
		return t == AccountingRules
	case *CoaDocument:
		return t == CoaValidation || t == CoaAlternateNames
	}
	return false
}
