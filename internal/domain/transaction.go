package domain

import (
	"strings"
)

// AccountingCategory is the broad Chart-of-Accounts bucket a specific category belongs to.
type AccountingCategory string

const (
	CategoryAssets      AccountingCategory = "Assets"
	CategoryLiabilities AccountingCategory = "Liabilities"
	CategoryEquity      AccountingCategory = "Equity"
	CategoryIncome      AccountingCategory = "Income"
	CategoryExpenses    AccountingCategory = "Expenses"
	CategoryUnknown     AccountingCategory = "Unknown"
)

// AccountingCategories lists every broad category in display order.
var AccountingCategories = []AccountingCategory{
	CategoryAssets,
	CategoryLiabilities,
	CategoryEquity,
	CategoryIncome,
	CategoryExpenses,
	CategoryUnknown,
}

// ParseAccountingCategory matches a broad category by name, case-insensitively.
func ParseAccountingCategory(s string) (AccountingCategory, bool) {
	for _, c := range AccountingCategories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return CategoryUnknown, false
}

// PredictionSource records which stage of the cascade produced a result.
type PredictionSource string

const (
	SourceBookHistory   PredictionSource = "Book History"
	SourceClientHistory PredictionSource = "Client History"
	SourceIndustryRule  PredictionSource = "Industry Rule"
	SourceGlobalRule    PredictionSource = "Global Rule"
	SourceAIModel       PredictionSource = "AI Model"
	SourceUnknown       PredictionSource = "Unknown Source"
)

// SuggestionConfidenceCeiling is the confidence at and above which no alternative category is offered.
const SuggestionConfidenceCeiling = 0.9

// NormalizedCategory is a canonical specific CoA name with its broad category.
type NormalizedCategory struct {
	SpecificName  string             `json:"specificName"`
	BroadCategory AccountingCategory `json:"broadCategory"`
}

// CategorizationResult is the output of any categorizer in the cascade.
type CategorizationResult struct {
	SpecificCategory          string             `json:"specificCategory"`
	BroadCategory             AccountingCategory `json:"broadCategory"`
	Confidence                float64            `json:"confidence"`
	TransactionType           string             `json:"transactionType,omitempty"`
	VendorCustomerName        string             `json:"vendorCustomerName,omitempty"`
	SuggestedSpecificCategory string             `json:"suggestedSpecificCategory,omitempty"`
	SuggestedBroadCategory    AccountingCategory `json:"suggestedBroadCategory,omitempty"`
	PredictionSource          PredictionSource   `json:"predictionSource"`
}

// Sanitize clamps the confidence into [0,1] and drops the suggested alternative
// when the result is confident enough not to need one.
func (r CategorizationResult) Sanitize() CategorizationResult {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if r.Confidence >= SuggestionConfidenceCeiling {
		r.SuggestedSpecificCategory = ""
		r.SuggestedBroadCategory = ""
	}
	return r
}

// Transaction is a categorized, reviewable transaction.
// UserOverrideCategory is only ever set by human review.
type Transaction struct {
	ID                        string             `json:"id"`
	Date                      string             `json:"date"`
	Description               string             `json:"description"`
	Amount                    float64            `json:"amount"`
	Currency                  string             `json:"currency"`
	SpecificCategory          string             `json:"specificCategory"`
	BroadCategory             AccountingCategory `json:"broadCategory"`
	ConfidenceScore           float64            `json:"confidenceScore"`
	UserOverrideCategory      string             `json:"userOverrideCategory,omitempty"`
	Notes                     string             `json:"notes,omitempty"`
	IsFlagged                 bool               `json:"isFlagged,omitempty"`
	AITransactionType         string             `json:"aiTransactionType,omitempty"`
	AIVendorCustomerName      string             `json:"aiVendorCustomerName,omitempty"`
	PredictionSource          PredictionSource   `json:"predictionSource"`
	SuggestedSpecificCategory string             `json:"suggestedSpecificCategory,omitempty"`
	SuggestedBroadCategory    AccountingCategory `json:"suggestedBroadCategory,omitempty"`
}

// EffectiveCategory is the override when one was chosen, otherwise the engine's category.
func (t Transaction) EffectiveCategory() string {
	if t.UserOverrideCategory != "" {
		return t.UserOverrideCategory
	}
	return t.SpecificCategory
}

// MappedTrainingTransaction is a previously confirmed, labeled transaction owned by a (client, book).
type MappedTrainingTransaction struct {
	ID                   string  `json:"id"`
	Date                 string  `json:"date"`
	Description          string  `json:"description"`
	Amount               float64 `json:"amount"`
	Currency             string  `json:"currency,omitempty"`
	Category             string  `json:"category"`
	VendorCustomerName   string  `json:"vendorCustomerName"`
	TransactionType      string  `json:"transactionType"`
	ReferenceNumber      string  `json:"referenceNumber,omitempty"`
	AccountNumber        string  `json:"accountNumber,omitempty"`
	ChartOfAccountNumber string  `json:"chartOfAccountNumber,omitempty"`
	ClientID             string  `json:"clientId"`
	BookID               string  `json:"bookId"`
}
