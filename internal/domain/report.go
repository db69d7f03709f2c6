package domain

import "unicode/utf8"

// PreviewLength is how much of a raw line a row error keeps.
const PreviewLength = 100

// RowError describes one skipped or flagged input row. RowIndex is 1-based relative to the first data row.
type RowError struct {
	RowIndex       int    `json:"rowIndex"`
	Message        string `json:"message"`
	RowDataPreview string `json:"rowDataPreview"`
}

// ValidationReport accumulates per-row outcomes of a parse.
// Summary counts equal the multiset of Errors messages.
type ValidationReport struct {
	SkippedRowCount int            `json:"skippedRowCount"`
	WarningRowCount int            `json:"warningRowCount"`
	Errors          []RowError     `json:"errors"`
	Warnings        []RowError     `json:"warnings,omitempty"`
	Summary         map[string]int `json:"summary"`
	// Notes carries file-level observations that are not tied to a row.
	Notes []string `json:"notes,omitempty"`
}

// NewValidationReport returns an empty report.
func NewValidationReport() *ValidationReport {
	return &ValidationReport{
		Errors:  []RowError{},
		Summary: make(map[string]int),
	}
}

// Skip records a skipped row.
func (r *ValidationReport) Skip(rowIndex int, message, line string) {
	r.SkippedRowCount++
	r.Errors = append(r.Errors, RowError{RowIndex: rowIndex, Message: message, RowDataPreview: Preview(line)})
	r.Summary[message]++
}

// Warn records a row that was kept but has a problem worth reviewing.
func (r *ValidationReport) Warn(rowIndex int, message, line string) {
	r.WarningRowCount++
	r.Warnings = append(r.Warnings, RowError{RowIndex: rowIndex, Message: message, RowDataPreview: Preview(line)})
}

// Preview cuts a line to PreviewLength characters.
func Preview(line string) string {
	if utf8.RuneCountInString(line) <= PreviewLength {
		return line
	}
	runes := []rune(line)
	return string(runes[:PreviewLength])
}
