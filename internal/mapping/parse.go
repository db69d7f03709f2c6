package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// MissingMappedHeaderReason is the summary reason used when the mapping does not fit the file.
const MissingMappedHeaderReason = "Missing Mapped Header"

// ConfigError is a mapping problem detected before any row is parsed.
// Report holds every data row as skipped under Reason.
type ConfigError struct {
	Reason string
	Detail string
	Err    error
	Report *domain.ValidationReport
}

func (e *ConfigError) Error() string {
	return e.Detail
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Options controls how text is split into rows.
type Options struct {
	// HeaderRow is the number of leading lines before the header line.
	HeaderRow int
	// Delimiter separates cells. Zero means comma.
	Delimiter rune
	// LenientDates keeps rows with an unparsable date and records a warning instead of skipping them.
	LenientDates bool
}

// Result is the outcome of ParseWithMapping.
type Result struct {
	Records []domain.RawTransactionRecord `json:"records"`
	Report  *domain.ValidationReport      `json:"report"`
	Amount  AmountSpec                    `json:"-"`
}

// TrainingResult is the outcome of ParseTrainingDataWithMapping.
type TrainingResult struct {
	Records []domain.MappedTrainingTransaction `json:"records"`
	Report  *domain.ValidationReport           `json:"report"`
}

var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// table is a split input file.
type table struct {
	headerLine string
	headers    []string
	index      map[string]int
	rows       []row
}

type row struct {
	index int // 1-based, relative to the first data row
	line  string
	cells []string
}

func splitTable(text string, opts Options) (*table, error) {
	lines := lineBreak.Split(strings.TrimSpace(text), -1)
	if opts.HeaderRow > 0 {
		if opts.HeaderRow >= len(lines) {
			lines = nil
		} else {
			lines = lines[opts.HeaderRow:]
		}
	}
	t := &table{index: make(map[string]int)}
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return t, nil
	}

	headers, err := splitLine(lines[0], opts.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("splitTable: header line: %w", err)
	}
	t.headerLine = lines[0]
	t.headers = headers
	for i, h := range headers {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}

	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells, err := splitLine(line, opts.Delimiter)
		if err != nil {
			// A malformed line still counts as a row; it simply has no usable cells.
			cells = nil
		}
		t.rows = append(t.rows, row{index: i + 1, line: line, cells: cells})
	}
	return t, nil
}

func splitLine(line string, delimiter rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if delimiter != 0 {
		r.Comma = delimiter
	}
	cells, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i, c := range cells {
		cells[i] = strings.TrimSpace(strings.Trim(strings.TrimSpace(c), `"'`))
	}
	return cells, nil
}

func (t *table) cell(r row, header string) string {
	i, ok := t.index[header]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return r.cells[i]
}

// Preview returns the header cells and up to n data rows, for mapping screens.
func Preview(text string, n int, opts Options) ([]string, [][]string, error) {
	t, err := splitTable(text, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("Preview: %w", err)
	}
	var rows [][]string
	for _, r := range t.rows {
		if len(rows) >= n {
			break
		}
		rows = append(rows, r.cells)
	}
	return t.headers, rows, nil
}

// checkMapping validates the mapping against the configs and the file header. On failure every
// data row is reported skipped and a *ConfigError is returned.
func checkMapping(t *table, mapping domain.ColumnMapping, configs []FieldConfig, requireAmount bool, msgs amountMessages, report *domain.ValidationReport) (AmountSpec, error) {
	fail := func(reason, detail string, sentinel error) error {
		for _, r := range t.rows {
			report.Skip(r.index, reason, r.line)
		}
		return &ConfigError{Reason: reason, Detail: detail, Err: sentinel, Report: report}
	}

	spec, err := ResolveAmountSpec(mapping, requireAmount)
	if errors.Is(err, ErrAmbiguousAmountMapping) {
		return nil, fail("Ambiguous Amount Mapping",
			"Map either a single Amount column or Debit/Credit columns, not both.", err)
	}
	if errors.Is(err, ErrNoAmountMapping) {
		return nil, fail(msgs.notMapped, msgs.notMapped, err)
	}

	for _, fc := range configs {
		header := strings.TrimSpace(mapping[fc.Field])
		if header == "" {
			continue
		}
		if _, ok := t.index[header]; !ok {
			detail := fmt.Sprintf("Mapped header %q for target field %q not found in CSV file.", header, fc.Label)
			return nil, fail(MissingMappedHeaderReason, detail, ErrMissingMappedHeader)
		}
	}
	return spec, nil
}

// rowRecord copies the mapped cells of a row into a record.
func (t *table) rowRecord(r row, mapping domain.ColumnMapping, configs []FieldConfig) domain.RawTransactionRecord {
	var rec domain.RawTransactionRecord
	for _, fc := range configs {
		header := strings.TrimSpace(mapping[fc.Field])
		if header == "" {
			continue
		}
		rec = rec.With(fc.Field, t.cell(r, header))
	}
	return rec
}

// validateRow applies mandatory-field, amount and date checks and returns the skip reason, if any.
func validateRow(rec domain.RawTransactionRecord, configs []FieldConfig, spec AmountSpec, requireAmount bool, msgs amountMessages) (float64, bool, string) {
	for _, fc := range configs {
		if fc.Mandatory && fc.Group != GroupAmountHandling && rec.Get(fc.Field) == "" {
			return 0, false, fc.missingReason()
		}
	}
	return amountFromRow(spec, rec, requireAmount, msgs)
}

func dateProblem(rec domain.RawTransactionRecord, configs []FieldConfig) string {
	if rec.Date == "" {
		return ""
	}
	if _, ok := ParseDate(rec.Date); ok {
		return ""
	}
	label := "Date"
	for _, fc := range configs {
		if fc.Field == domain.FieldDate {
			label = fc.Label
		}
	}
	return fmt.Sprintf("Invalid date format for %s: %s", label, rec.Date)
}

// ParseWithMapping maps every data row of text to a record. Rows with missing mandatory fields,
// an unusable amount or an unparsable date are skipped and reported. A mapping that names a header
// the file lacks, or that maps both amount shapes, fails the whole parse with a *ConfigError.
func ParseWithMapping(text string, mapping domain.ColumnMapping, configs []FieldConfig, opts Options) (*Result, error) {
	report := domain.NewValidationReport()
	result := &Result{Records: []domain.RawTransactionRecord{}, Report: report}

	t, err := splitTable(text, opts)
	if err != nil {
		return nil, fmt.Errorf("ParseWithMapping: %w", err)
	}
	if len(t.rows) == 0 {
		report.Notes = append(report.Notes, "File has no data rows.")
		return result, nil
	}

	requireAmount := amountGroupMandatory(configs)
	spec, err := checkMapping(t, mapping, configs, requireAmount, standardAmountMessages, report)
	if err != nil {
		return result, err
	}
	result.Amount = spec

	for _, r := range t.rows {
		rec := t.rowRecord(r, mapping, configs)
		_, _, reason := validateRow(rec, configs, spec, requireAmount, standardAmountMessages)
		if reason == "" {
			if problem := dateProblem(rec, configs); problem != "" {
				if !opts.LenientDates {
					reason = problem
				} else {
					report.Warn(r.index, problem, r.line)
				}
			}
		}
		if reason != "" {
			report.Skip(r.index, reason, r.line)
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// ParseTrainingDataWithMapping parses a labeled file into training transactions owned by
// (clientID, bookID). Labels are mandatory and an amount column must be mapped.
func ParseTrainingDataWithMapping(text string, mapping domain.ColumnMapping, clientID, bookID string, configs []FieldConfig, opts Options) (*TrainingResult, error) {
	report := domain.NewValidationReport()
	result := &TrainingResult{Records: []domain.MappedTrainingTransaction{}, Report: report}

	t, err := splitTable(text, opts)
	if err != nil {
		return nil, fmt.Errorf("ParseTrainingDataWithMapping: %w", err)
	}
	if len(t.rows) == 0 {
		report.Notes = append(report.Notes, "Training data file has no data rows.")
		return result, nil
	}

	spec, err := checkMapping(t, mapping, configs, true, trainingAmountMessages, report)
	if err != nil {
		return result, err
	}

	for _, r := range t.rows {
		rec := t.rowRecord(r, mapping, configs)
		amount, ok, reason := validateRow(rec, configs, spec, true, trainingAmountMessages)
		if reason == "" && !ok {
			reason = "Amount calculation failed or resulted in no value."
		}
		if reason != "" {
			report.Skip(r.index, reason, r.line)
			continue
		}
		result.Records = append(result.Records, domain.MappedTrainingTransaction{
			ID:                   uuid.NewString(),
			Date:                 rec.Date,
			Description:          rec.Description,
			Amount:               amount,
			Currency:             rec.Currency,
			Category:             rec.ChartOfAccount,
			VendorCustomerName:   rec.VendorCustomerName,
			TransactionType:      rec.TransactionType,
			ReferenceNumber:      rec.ReferenceNumber,
			AccountNumber:        rec.AccountNumber,
			ChartOfAccountNumber: rec.ChartOfAccountNumber,
			ClientID:             clientID,
			BookID:               bookID,
		})
	}
	return result, nil
}
