package quality

import (
	"strings"
	"testing"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

func rec(date, desc, amount string) domain.RawTransactionRecord {
	return domain.RawTransactionRecord{Date: date, Description: desc, Amount: amount}
}

func countIssues(issues []Issue, cat Category) int {
	n := 0
	for _, is := range issues {
		if is.Category == cat {
			n++
		}
	}
	return n
}

func TestAnalyze_Duplicates(t *testing.T) {
	records := []domain.RawTransactionRecord{
		rec("2024-01-15", "Office Depot Purchase", "-45.67"),
		rec("2024-01-15", "office depot purchase", "-45.67"),
		rec("2024-01-16", "Payroll Run", "-2000"),
	}
	res := Analyze(records, nil)

	if got := countIssues(res.Issues, CategoryDuplicates); got != 2 {
		t.Fatalf("Expected 2 duplicate issues, got %d", got)
	}
	for _, is := range res.Issues {
		if is.Category == CategoryDuplicates && !strings.Contains(is.Message, "appears 2 times") {
			t.Errorf("unexpected message %q", is.Message)
		}
	}
	if res.Suggestions[0].ID != "remove-duplicates" {
		t.Errorf("Expected remove-duplicates first, got %+v", res.Suggestions)
	}
}

func TestAnalyze_MissingAndFormat(t *testing.T) {
	records := []domain.RawTransactionRecord{
		rec("", "Lunch meeting", "12.50"),
		rec("13/45/2024", "Coffee beans", "abc"),
		rec("2024-01-20", "ok", ""),
	}
	res := Analyze(records, nil)

	tests := []struct {
		row     int
		message string
	}{
		{1, "Missing date (required for processing)"},
		{2, `Invalid date format: "13/45/2024"`},
		{2, `Invalid number format: "abc"`},
		{3, "Missing amount information"},
		{3, "Description is very short"},
	}
	for _, tt := range tests {
		found := false
		for _, is := range res.Issues {
			if is.RowIndex == tt.row && is.Message == tt.message {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected issue %q on row %d", tt.message, tt.row)
		}
	}
	if res.Metrics.ValidRows != 0 {
		t.Errorf("ValidRows = %d, want 0", res.Metrics.ValidRows)
	}
}

func TestAnalyze_Outliers(t *testing.T) {
	records := []domain.RawTransactionRecord{
		rec("2024-01-01", "Coffee shop", "10"),
		rec("2024-01-02", "Coffee shop", "12"),
		rec("2024-01-03", "Coffee shop", "11"),
		rec("2024-01-04", "Coffee shop", "9"),
		rec("2024-01-05", "Server rack purchase", "-25000"),
	}
	res := Analyze(records, nil)

	var outliers []Issue
	for _, is := range res.Issues {
		if is.Category == CategoryOutliers {
			outliers = append(outliers, is)
		}
	}
	if len(outliers) != 1 || outliers[0].RowIndex != 5 {
		t.Fatalf("Expected one outlier on row 5, got %+v", outliers)
	}
	if res.Metrics.OutlierRows != 1 {
		t.Errorf("OutlierRows = %d", res.Metrics.OutlierRows)
	}
}

func TestAnalyze_Consistency(t *testing.T) {
	records := []domain.RawTransactionRecord{
		{Date: "2024-01-15", Description: "Hosting invoice", Amount: "20", Currency: "usd"},
		{Date: "01/16/2024", Description: "Hosting invoice", Amount: "21", Currency: "EUR"},
	}
	res := Analyze(records, nil)

	var msgs []string
	for _, is := range res.Issues {
		if is.Category == CategoryConsistency {
			msgs = append(msgs, is.Message)
		}
	}
	joined := strings.Join(msgs, "\n")
	if !strings.Contains(joined, "Mixed currencies detected: USD, EUR") {
		t.Errorf("missing currency issue in %q", joined)
	}
	if !strings.Contains(joined, "Mixed date formats detected: YYYY-MM-DD, MM/DD/YYYY") {
		t.Errorf("missing date format issue in %q", joined)
	}
}

func TestAnalyze_CleanFileScoresHigh(t *testing.T) {
	records := []domain.RawTransactionRecord{
		rec("2024-01-01", "Monthly office rent payment", "-1500"),
		rec("2024-01-02", "Client invoice 1001 paid", "2400"),
		rec("2024-01-03", "Adobe creative cloud subscription", "-54.99"),
		rec("2024-01-04", "Staples printer paper order", "-38.20"),
	}
	res := Analyze(records, nil)

	if res.Metrics.TotalRows != 4 || res.Metrics.ValidRows != 4 {
		t.Errorf("unexpected metrics %+v", res.Metrics)
	}
	if res.Metrics.QualityScore != 100 {
		t.Errorf("QualityScore = %d, want 100", res.Metrics.QualityScore)
	}
	if len(res.Suggestions) != 1 || res.Suggestions[0].ID != "improve-descriptions" {
		t.Errorf("unexpected suggestions %+v", res.Suggestions)
	}
}

func TestMergeReport_DoesNotMutateBase(t *testing.T) {
	base := domain.NewValidationReport()
	base.Skip(4, "Missing mandatory field: Amount", "2024-01-05,Lunch,")

	issues := []Issue{
		{Type: IssueWarning, Category: CategoryOutliers, RowIndex: 2, Field: "amount", Message: "Unusually large amount: 9000.00"},
		{Type: IssueInfo, Category: CategoryConsistency, Message: "Mixed date formats detected: A, B"},
	}
	merged := MergeReport(base, issues)

	if len(base.Warnings) != 0 || len(base.Notes) != 0 {
		t.Errorf("base report was modified: %+v", base)
	}
	if merged.SkippedRowCount != 1 || len(merged.Errors) != 1 {
		t.Errorf("skips not carried over: %+v", merged)
	}
	if merged.WarningRowCount != 1 || len(merged.Warnings) != 1 || len(merged.Notes) != 1 {
		t.Errorf("unexpected merged report %+v", merged)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	res := Analyze(nil, nil)
	if res.Metrics.TotalRows != 0 || res.Metrics.QualityScore != 0 {
		t.Errorf("unexpected metrics %+v", res.Metrics)
	}
	if res.Report == nil {
		t.Error("Expected a report")
	}
}
