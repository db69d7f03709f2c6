package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanModelJSON strips Markdown fences and any text around the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```")
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

// ParseResponse decodes a model reply into a Guess. The confidence is clamped into [0,1].
func ParseResponse(raw string) (*Guess, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("ParseResponse: empty reply: %w", ErrMalformedResponse)
	}

	var reply struct {
		Category           *string  `json:"category"`
		Confidence         *float64 `json:"confidence"`
		TransactionType    *string  `json:"transactionType"`
		VendorCustomerName *string  `json:"vendorCustomerName"`
		SuggestedCategory  *string  `json:"suggestedCategory"`
	}
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return nil, fmt.Errorf("ParseResponse: %v: %w", err, ErrMalformedResponse)
	}
	if reply.Category == nil || strings.TrimSpace(*reply.Category) == "" || reply.Confidence == nil {
		return nil, fmt.Errorf("ParseResponse: missing category or confidence: %w", ErrMalformedResponse)
	}

	g := &Guess{
		Category:   strings.TrimSpace(*reply.Category),
		Confidence: clamp01(*reply.Confidence),
	}
	if reply.TransactionType != nil {
		g.TransactionType = *reply.TransactionType
	}
	if reply.VendorCustomerName != nil {
		g.VendorCustomerName = *reply.VendorCustomerName
	}
	if reply.SuggestedCategory != nil {
		g.SuggestedCategory = *reply.SuggestedCategory
	}
	return g, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
