package matcher

import (
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

const (
	IndustryRuleConfidence = 0.80
	GlobalRuleConfidence   = 0.75

	// GeneralIndustry marks fixed asset rules that apply to every business.
	GeneralIndustry = "General"
	payrollCategory = "Payroll Expense"
)

func anyKeyword(description string, keywords []string) bool {
	d := strings.ToLower(description)
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

func accounting(rs *rules.RuleSet) *rules.AccountingRulesBody {
	if rs == nil || rs.Accounting == nil {
		return nil
	}
	return rs.Accounting.AccountingRules
}

// MatchIndustryRules scans the fixed asset and insurance rules tagged with the industry's name.
// The first rule with a keyword in the description decides; if its category does not normalize
// to a broad category there is no match.
func MatchIndustryRules(raw domain.RawTransactionRecord, industry *domain.Industry, rs *rules.RuleSet) *domain.CategorizationResult {
	body := accounting(rs)
	if body == nil || industry == nil || strings.TrimSpace(raw.Description) == "" {
		return nil
	}

	sections := append(append([]rules.RuleCategory{}, body.FixedAssets.Categories...), body.Insurance.Categories...)
	for _, rc := range sections {
		if rc.Industry == "" || !strings.EqualFold(rc.Industry, industry.Name) {
			continue
		}
		if !anyKeyword(raw.Description, rc.Keywords) {
			continue
		}
		nc := normalizer.Normalize(rc.Label(), rs)
		if nc.BroadCategory == domain.CategoryUnknown {
			return nil
		}
		return &domain.CategorizationResult{
			SpecificCategory: nc.SpecificName,
			BroadCategory:    nc.BroadCategory,
			Confidence:       IndustryRuleConfidence,
			PredictionSource: domain.SourceIndustryRule,
		}
	}
	return nil
}

// MatchGlobalRules scans the fixed asset rules for the General industry, then the payroll keywords.
// Rules whose category does not normalize are passed over.
func MatchGlobalRules(raw domain.RawTransactionRecord, rs *rules.RuleSet) *domain.CategorizationResult {
	body := accounting(rs)
	if body == nil || strings.TrimSpace(raw.Description) == "" {
		return nil
	}

	var general []rules.RuleCategory
	for _, rc := range body.FixedAssets.Categories {
		if rc.Industry == GeneralIndustry {
			general = append(general, rc)
		}
	}
	if len(body.Payroll.CoreKeywords) > 0 {
		general = append(general, rules.RuleCategory{Name: payrollCategory, Type: "Payroll", Keywords: body.Payroll.CoreKeywords})
	}

	for _, rc := range general {
		if !anyKeyword(raw.Description, rc.Keywords) {
			continue
		}
		nc := normalizer.Normalize(rc.Label(), rs)
		if nc.BroadCategory == domain.CategoryUnknown {
			continue
		}
		return &domain.CategorizationResult{
			SpecificCategory: nc.SpecificName,
			BroadCategory:    nc.BroadCategory,
			Confidence:       GlobalRuleConfidence,
			PredictionSource: domain.SourceGlobalRule,
		}
	}
	return nil
}
