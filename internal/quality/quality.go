// Package quality scores parsed records and points out rows worth fixing before categorization.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
)

type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueInfo    IssueType = "info"
)

type Category string

const (
	CategoryDuplicates  Category = "duplicates"
	CategoryMissingData Category = "missing_data"
	CategoryFormat      Category = "format"
	CategoryOutliers    Category = "outliers"
	CategoryConsistency Category = "consistency"
	CategoryQuality     Category = "quality"
)

// Issue is one finding. RowIndex is 1-based over the analyzed records; 0 means the whole file.
type Issue struct {
	Type       IssueType `json:"type"`
	Severity   string    `json:"severity"`
	Category   Category  `json:"category"`
	RowIndex   int       `json:"rowIndex,omitempty"`
	Field      string    `json:"field,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion"`
	CanAutoFix bool      `json:"canAutoFix"`
}

type Suggestion struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Effort      string `json:"effort"`
}

type Metrics struct {
	TotalRows         int `json:"totalRows"`
	ValidRows         int `json:"validRows"`
	DuplicateRows     int `json:"duplicateRows"`
	MissingDataRows   int `json:"missingDataRows"`
	InvalidFormatRows int `json:"invalidFormatRows"`
	OutlierRows       int `json:"outlierRows"`
	QualityScore      int `json:"qualityScore"`
}

// Result is the outcome of Analyze.
type Result struct {
	Metrics     Metrics                  `json:"metrics"`
	Issues      []Issue                  `json:"issues"`
	Suggestions []Suggestion             `json:"suggestions"`
	Report      *domain.ValidationReport `json:"report"`
}

// Analyze runs every check over records. The parse report, when given, is copied and the
// copy receives the findings as warnings; the original is left untouched.
func Analyze(records []domain.RawTransactionRecord, parseReport *domain.ValidationReport) *Result {
	var issues []Issue
	issues = append(issues, detectDuplicates(records)...)
	issues = append(issues, detectMissingData(records)...)
	issues = append(issues, validateFormats(records)...)
	issues = append(issues, detectOutliers(records)...)
	issues = append(issues, checkConsistency(records)...)
	issues = append(issues, assessQuality(records)...)

	return &Result{
		Metrics:     calculateMetrics(records, issues),
		Issues:      issues,
		Suggestions: generateSuggestions(issues),
		Report:      MergeReport(parseReport, issues),
	}
}

func amountText(rec domain.RawTransactionRecord) string {
	switch {
	case rec.Amount != "":
		return rec.Amount
	case rec.DebitAmount != "":
		return rec.DebitAmount
	}
	return rec.CreditAmount
}

func detectDuplicates(records []domain.RawTransactionRecord) []Issue {
	seen := make(map[string][]int)
	var order []string
	for i, rec := range records {
		key := strings.TrimSpace(strings.ToLower(rec.Date + "|" + rec.Description + "|" + amountText(rec)))
		if key == "" || key == "||" {
			continue
		}
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = append(seen[key], i+1)
	}

	var issues []Issue
	for _, key := range order {
		rows := seen[key]
		if len(rows) < 2 {
			continue
		}
		for _, row := range rows {
			issues = append(issues, Issue{
				Type:       IssueWarning,
				Severity:   "medium",
				Category:   CategoryDuplicates,
				RowIndex:   row,
				Message:    fmt.Sprintf("Potential duplicate transaction (appears %d times)", len(rows)),
				Suggestion: "Review and remove duplicate entries",
			})
		}
	}
	return issues
}

func detectMissingData(records []domain.RawTransactionRecord) []Issue {
	var issues []Issue
	for i, rec := range records {
		row := i + 1
		for _, f := range []domain.TargetField{domain.FieldDate, domain.FieldDescription} {
			if rec.Get(f) == "" {
				issues = append(issues, Issue{
					Type:       IssueError,
					Severity:   "high",
					Category:   CategoryMissingData,
					RowIndex:   row,
					Field:      f.Key(),
					Message:    fmt.Sprintf("Missing %s (required for processing)", f.Key()),
					Suggestion: "Fill in the missing data or skip this row",
				})
			}
		}
		if rec.Amount == "" && rec.DebitAmount == "" && rec.CreditAmount == "" {
			issues = append(issues, Issue{
				Type:       IssueError,
				Severity:   "high",
				Category:   CategoryMissingData,
				RowIndex:   row,
				Field:      domain.FieldAmount.Key(),
				Message:    "Missing amount information",
				Suggestion: "Provide amount data in Amount, Debit, or Credit columns",
			})
		}
		if rec.FilledCount() < 2 {
			issues = append(issues, Issue{
				Type:       IssueWarning,
				Severity:   "medium",
				Category:   CategoryMissingData,
				RowIndex:   row,
				Message:    "Row appears mostly empty",
				Suggestion: "Review and remove empty rows",
				CanAutoFix: true,
			})
		}
	}
	return issues
}

func validateFormats(records []domain.RawTransactionRecord) []Issue {
	var issues []Issue
	for i, rec := range records {
		row := i + 1
		if rec.Date != "" {
			if _, ok := mapping.ParseDate(rec.Date); !ok {
				issues = append(issues, Issue{
					Type:       IssueError,
					Severity:   "high",
					Category:   CategoryFormat,
					RowIndex:   row,
					Field:      domain.FieldDate.Key(),
					Message:    fmt.Sprintf("Invalid date format: %q", rec.Date),
					Suggestion: "Use YYYY-MM-DD, MM/DD/YYYY, or DD/MM/YYYY format",
					CanAutoFix: true,
				})
			}
		}
		for _, f := range []domain.TargetField{domain.FieldAmount, domain.FieldDebitAmount, domain.FieldCreditAmount} {
			v := rec.Get(f)
			if v == "" {
				continue
			}
			if _, ok := mapping.ParseAmount(v); !ok {
				issues = append(issues, Issue{
					Type:       IssueError,
					Severity:   "high",
					Category:   CategoryFormat,
					RowIndex:   row,
					Field:      f.Key(),
					Message:    fmt.Sprintf("Invalid number format: %q", v),
					Suggestion: "Use standard number format (e.g., 123.45 or $123.45)",
					CanAutoFix: true,
				})
			}
		}
		if rec.Description != "" && len([]rune(strings.TrimSpace(rec.Description))) < 3 {
			issues = append(issues, Issue{
				Type:       IssueWarning,
				Severity:   "low",
				Category:   CategoryQuality,
				RowIndex:   row,
				Field:      domain.FieldDescription.Key(),
				Message:    "Description is very short",
				Suggestion: "Add more descriptive transaction details",
			})
		}
	}
	return issues
}

// detectOutliers flags amounts above the upper IQR fence (q3 + 1.5*iqr) of absolute amounts.
func detectOutliers(records []domain.RawTransactionRecord) []Issue {
	abs := make([]float64, len(records))
	var amounts []float64
	for i, rec := range records {
		v, err := mapping.ResolveAmount(rec)
		if err != nil || v == 0 {
			continue
		}
		abs[i] = math.Abs(v)
		amounts = append(amounts, abs[i])
	}
	if len(amounts) == 0 {
		return nil
	}

	sort.Float64s(amounts)
	q1 := amounts[int(math.Floor(float64(len(amounts))*0.25))]
	q3 := amounts[int(math.Floor(float64(len(amounts))*0.75))]
	upperFence := q3 + (q3-q1)*1.5

	var issues []Issue
	for i, a := range abs {
		if a > upperFence {
			issues = append(issues, Issue{
				Type:       IssueWarning,
				Severity:   "medium",
				Category:   CategoryOutliers,
				RowIndex:   i + 1,
				Field:      domain.FieldAmount.Key(),
				Message:    fmt.Sprintf("Unusually large amount: %.2f", a),
				Suggestion: "Verify this amount is correct",
			})
		}
	}
	return issues
}

func checkConsistency(records []domain.RawTransactionRecord) []Issue {
	var currencies, formats []string
	seenCurrency := make(map[string]bool)
	seenFormat := make(map[string]bool)
	for _, rec := range records {
		if c := strings.ToUpper(strings.TrimSpace(rec.Currency)); c != "" && !seenCurrency[c] {
			seenCurrency[c] = true
			currencies = append(currencies, c)
		}
		if f := mapping.DetectDateFormat(rec.Date); f != "" && !seenFormat[f] {
			seenFormat[f] = true
			formats = append(formats, f)
		}
	}

	var issues []Issue
	if len(currencies) > 1 {
		issues = append(issues, Issue{
			Type:       IssueWarning,
			Severity:   "medium",
			Category:   CategoryConsistency,
			Message:    "Mixed currencies detected: " + strings.Join(currencies, ", "),
			Suggestion: "Ensure all transactions use the same currency",
		})
	}
	if len(formats) > 1 {
		issues = append(issues, Issue{
			Type:       IssueInfo,
			Severity:   "low",
			Category:   CategoryConsistency,
			Message:    "Mixed date formats detected: " + strings.Join(formats, ", "),
			Suggestion: "Standardize to YYYY-MM-DD format for consistency",
			CanAutoFix: true,
		})
	}
	return issues
}

func assessQuality(records []domain.RawTransactionRecord) []Issue {
	if len(records) == 0 {
		return nil
	}
	var issues []Issue
	if c := completeness(records); c < 0.7 {
		issues = append(issues, Issue{
			Type:       IssueWarning,
			Severity:   "high",
			Category:   CategoryQuality,
			Message:    fmt.Sprintf("Low data completeness: %.1f%%", c*100),
			Suggestion: "Review and complete missing data fields",
		})
	}

	total := 0
	for _, rec := range records {
		total += len([]rune(rec.Description))
	}
	if avg := float64(total) / float64(len(records)); avg < 10 {
		issues = append(issues, Issue{
			Type:       IssueInfo,
			Severity:   "low",
			Category:   CategoryQuality,
			Message:    fmt.Sprintf("Short average description length: %.1f characters", avg),
			Suggestion: "Add more detailed transaction descriptions for better categorization",
		})
	}
	return issues
}

// completeness is the filled share of date, description and any-amount per record.
func completeness(records []domain.RawTransactionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	filled := 0
	for _, rec := range records {
		if rec.Date != "" {
			filled++
		}
		if rec.Description != "" {
			filled++
		}
		if rec.Amount != "" || rec.DebitAmount != "" || rec.CreditAmount != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(records)*3)
}

func generateSuggestions(issues []Issue) []Suggestion {
	counts := make(map[Category]int)
	for _, is := range issues {
		counts[is.Category]++
	}

	var out []Suggestion
	if n := counts[CategoryDuplicates]; n > 0 {
		out = append(out, Suggestion{
			ID:          "remove-duplicates",
			Title:       "Remove Duplicate Transactions",
			Description: fmt.Sprintf("Found %d potential duplicate transactions. Removing duplicates will improve data accuracy.", n),
			Impact:      "high",
			Effort:      "review",
		})
	}
	if n := counts[CategoryFormat]; n > 0 {
		out = append(out, Suggestion{
			ID:          "standardize-formats",
			Title:       "Standardize Data Formats",
			Description: fmt.Sprintf("Fix %d formatting issues automatically (dates, amounts, etc.)", n),
			Impact:      "high",
			Effort:      "auto",
		})
	}
	if n := counts[CategoryMissingData]; n > 0 {
		out = append(out, Suggestion{
			ID:          "fill-missing-data",
			Title:       "Review Missing Data",
			Description: fmt.Sprintf("%d rows have missing required information. Complete these fields for proper processing.", n),
			Impact:      "high",
			Effort:      "manual",
		})
	}
	out = append(out, Suggestion{
		ID:          "improve-descriptions",
		Title:       "Enhance Transaction Descriptions",
		Description: "Add more detailed descriptions to improve categorization accuracy.",
		Impact:      "medium",
		Effort:      "manual",
	})
	return out
}

func calculateMetrics(records []domain.RawTransactionRecord, issues []Issue) Metrics {
	m := Metrics{TotalRows: len(records)}
	errorRows := make(map[int]bool)
	errorCount, warningCount := 0, 0
	for _, is := range issues {
		switch is.Type {
		case IssueError:
			errorCount++
			if is.RowIndex > 0 {
				errorRows[is.RowIndex] = true
			}
		case IssueWarning:
			warningCount++
		}
		switch is.Category {
		case CategoryDuplicates:
			m.DuplicateRows++
		case CategoryMissingData:
			m.MissingDataRows++
		case CategoryFormat:
			m.InvalidFormatRows++
		case CategoryOutliers:
			m.OutlierRows++
		}
	}
	m.ValidRows = m.TotalRows - len(errorRows)

	if m.TotalRows == 0 {
		return m
	}
	total := float64(m.TotalRows)
	score := 100 - float64(errorCount)/total*50 - float64(warningCount)/total*30 + completeness(records)*20
	m.QualityScore = int(math.Round(math.Max(0, math.Min(100, score))))
	return m
}

// MergeReport returns a copy of base with the row findings appended as warnings.
func MergeReport(base *domain.ValidationReport, issues []Issue) *domain.ValidationReport {
	merged := domain.NewValidationReport()
	if base != nil {
		merged.SkippedRowCount = base.SkippedRowCount
		merged.Errors = append(merged.Errors, base.Errors...)
		merged.Warnings = append(merged.Warnings, base.Warnings...)
		merged.Notes = append(merged.Notes, base.Notes...)
		for k, v := range base.Summary {
			merged.Summary[k] = v
		}
	}

	warnedRows := make(map[int]bool)
	for _, w := range merged.Warnings {
		warnedRows[w.RowIndex] = true
	}
	for _, is := range issues {
		if is.RowIndex == 0 {
			merged.Notes = append(merged.Notes, is.Message)
			continue
		}
		merged.Warnings = append(merged.Warnings, domain.RowError{
			RowIndex:       is.RowIndex,
			Message:        is.Message,
			RowDataPreview: is.Field,
		})
		warnedRows[is.RowIndex] = true
	}
	merged.WarningRowCount = len(warnedRows)
	return merged
}
