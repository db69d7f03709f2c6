package rules

import (
	"embed"
	"fmt"
	"sync"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

var defaultPaths = map[RuleType]string{
	AccountingRules:   "defaults/accounting_rules.yaml",
	CoaValidation:     "defaults/coa_validation.yaml",
	CoaAlternateNames: "defaults/coa_alternate_names.yaml",
}

var (
	defaultsOnce sync.Once
	defaultDocs  map[RuleType]Document
	defaultsErr  error
)

// Default returns the compiled-in document for a rule type.
// The returned document is shared and must not be modified.
func Default(t RuleType) (Document, error) {
	defaultsOnce.Do(loadDefaults)
	if defaultsErr != nil {
		return nil, defaultsErr
	}
	doc, ok := defaultDocs[t]
	if !ok {
		return nil, fmt.Errorf("Default: %w: %q", ErrUnknownRuleType, t)
	}
	return doc, nil
}

// DefaultRaw returns the compiled-in YAML source for a rule type.
func DefaultRaw(t RuleType) ([]byte, error) {
	path, ok := defaultPaths[t]
	if !ok {
		return nil, fmt.Errorf("DefaultRaw: %w: %q", ErrUnknownRuleType, t)
	}
	return defaultFiles.ReadFile(path)
}

func loadDefaults() {
	defaultDocs = make(map[RuleType]Document, len(defaultPaths))
	for _, t := range RuleTypes {
		raw, err := DefaultRaw(t)
		if err != nil {
			defaultsErr = fmt.Errorf("loadDefaults: read %s: %w", t, err)
			return
		}
		doc, err := Decode(t, raw)
		if err != nil {
			defaultsErr = fmt.Errorf("loadDefaults: %w", err)
			return
		}
		defaultDocs[t] = doc
	}
}
