package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// exampleCategories seed the prompt when no catalog is supplied.
var exampleCategories = []string{
	"Service Fee Income", "Office Supplies", "Dental Supplies", "Rent Expense", "Software Subscription",
	"Bank Loan Payment", "Equipment Purchase", "Owner's Drawing", "Common Stock Investment",
}

// maxCatalogInPrompt bounds how many catalog names are listed in a prompt.
const maxCatalogInPrompt = 80

// BuildInstruction returns the instruction text shared by every model adapter.
func BuildInstruction(industry string, catalog []string) string {
	var broad []string
	for _, c := range domain.AccountingCategories {
		if c != domain.CategoryUnknown {
			broad = append(broad, string(c))
		}
	}
	names := catalog
	if len(names) == 0 {
		names = exampleCategories
	}
	if len(names) > maxCatalogInPrompt {
		names = names[:maxCatalogInPrompt]
	}

	var b strings.Builder
	b.WriteString("You are an expert accounting assistant. Your task is to classify bank transaction descriptions into specific Chart of Account (CoA) names.\n")
	fmt.Fprintf(&b, "The main accounting categories are: %s.\n", strings.Join(broad, ", "))
	fmt.Fprintf(&b, "Prefer one of these specific CoA names when it fits: %s.\n", strings.Join(names, ", "))
	if industry = strings.TrimSpace(industry); industry != "" {
		fmt.Fprintf(&b, "Consider that the transaction is for a business in the '%s' industry.\n", industry)
	}
	b.WriteString("Analyze the transaction description carefully.\n" +
		"Provide the output ONLY as a JSON object with the following keys:\n" +
		"- \"category\": (string) The most appropriate specific Chart of Account name.\n" +
		"- \"confidence\": (number) A score from 0.0 to 1.0 representing your confidence.\n" +
		"- \"transactionType\": (string, optional) The type of transaction (e.g., \"Payment\", \"Sale\", \"Subscription\", \"Refund\", \"Transfer\").\n" +
		"- \"vendorCustomerName\": (string, optional) The vendor or customer name if identifiable from the description.\n" +
		"- \"suggestedCategory\": (string, optional) If your confidence is below 0.9, an alternative specific CoA name that could also be plausible.\n" +
		"Return ONLY valid raw JSON. Do NOT wrap the response in code fences.\n")
	return b.String()
}

// BuildPrompt returns the per-transaction part of the prompt.
func BuildPrompt(description string) string {
	quoted, _ := json.Marshal(description)
	return "Transaction Description: " + string(quoted)
}
