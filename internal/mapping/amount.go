package mapping

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

var (
	// ErrAmbiguousAmountMapping means both a single amount column and debit/credit columns were mapped.
	ErrAmbiguousAmountMapping = errors.New("both Amount and Debit/Credit columns are mapped")
	// ErrNoAmountMapping means a mandatory amount group has no mapped column.
	ErrNoAmountMapping = errors.New("no amount column is mapped")
	// ErrMissingMappedHeader means a mapped header does not exist in the file.
	ErrMissingMappedHeader = errors.New("mapped header not found in file")
)

// AmountSpec is how a row's amount is read: Single or SplitDebitCredit.
type AmountSpec interface {
	fields() []domain.TargetField
}

// Single reads the amount from one signed column.
type Single struct {
	Field domain.TargetField
}

func (s Single) fields() []domain.TargetField { return []domain.TargetField{s.Field} }

// SplitDebitCredit reads the amount as credit minus debit. Either side may be unmapped.
type SplitDebitCredit struct {
	Debit  domain.TargetField
	Credit domain.TargetField
	// HasDebit and HasCredit record which side is mapped.
	HasDebit  bool
	HasCredit bool
}

func (s SplitDebitCredit) fields() []domain.TargetField {
	var out []domain.TargetField
	if s.HasDebit {
		out = append(out, s.Debit)
	}
	if s.HasCredit {
		out = append(out, s.Credit)
	}
	return out
}

// ResolveAmountSpec decides how amounts are read for a mapping. It returns a nil spec when
// nothing in the amount group is mapped and the group is optional.
func ResolveAmountSpec(mapping domain.ColumnMapping, required bool) (AmountSpec, error) {
	single := mapped(mapping, domain.FieldAmount)
	debit := mapped(mapping, domain.FieldDebitAmount)
	credit := mapped(mapping, domain.FieldCreditAmount)

	switch {
	case single && (debit || credit):
		return nil, ErrAmbiguousAmountMapping
	case single:
		return Single{Field: domain.FieldAmount}, nil
	case debit || credit:
		return SplitDebitCredit{
			Debit:     domain.FieldDebitAmount,
			Credit:    domain.FieldCreditAmount,
			HasDebit:  debit,
			HasCredit: credit,
		}, nil
	case required:
		return nil, ErrNoAmountMapping
	}
	return nil, nil
}

func mapped(mapping domain.ColumnMapping, f domain.TargetField) bool {
	return strings.TrimSpace(mapping[f]) != ""
}

// ParseAmount parses a money string. Currency symbols, whitespace and thousands separators
// are stripped and a parenthesized value is negative. ok is false for blank or non-numeric input.
func ParseAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '$', ',', '€', '£', '¥', '₹':
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	clean := b.String()
	if clean == "" {
		return 0, false
	}
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + clean[1:len(clean)-1]
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// amountFromRow resolves a row amount under spec. reason is non-empty when the row must be skipped.
func amountFromRow(spec AmountSpec, rec domain.RawTransactionRecord, required bool, msgs amountMessages) (float64, bool, string) {
	switch s := spec.(type) {
	case Single:
		raw := rec.Get(s.Field)
		v, ok := ParseAmount(raw)
		if ok {
			return v, true, ""
		}
		if !required {
			return 0, false, ""
		}
		if raw != "" {
			return 0, false, "Invalid number format for Amount: " + raw
		}
		return 0, false, msgs.missingSingle
	case SplitDebitCredit:
		debitRaw, creditRaw := rec.Get(s.Debit), rec.Get(s.Credit)
		debit, debitOK := ParseAmount(debitRaw)
		credit, creditOK := ParseAmount(creditRaw)
		if debitRaw != "" && !debitOK {
			return 0, false, "Invalid number format for Debit Amount: " + debitRaw
		}
		if creditRaw != "" && !creditOK {
			return 0, false, "Invalid number format for Credit Amount: " + creditRaw
		}
		switch {
		case debitOK && creditOK:
			return credit - debit, true, ""
		case debitOK:
			return -debit, true, ""
		case creditOK:
			return credit, true, ""
		case required:
			return 0, false, msgs.missingSplit
		}
		return 0, false, ""
	}
	if required {
		return 0, false, msgs.notMapped
	}
	return 0, false, ""
}

// ResolveAmount computes the signed amount of a parsed record: the single amount when present,
// else credit minus debit. It fails when no amount is present or a present value does not parse.
func ResolveAmount(rec domain.RawTransactionRecord) (float64, error) {
	if rec.Amount != "" {
		v, ok := ParseAmount(rec.Amount)
		if !ok {
			return 0, fmt.Errorf("unparsable amount %q", rec.Amount)
		}
		return v, nil
	}
	if rec.DebitAmount == "" && rec.CreditAmount == "" {
		return 0, errors.New("missing amount fields")
	}
	debit, debitOK := ParseAmount(rec.DebitAmount)
	if rec.DebitAmount != "" && !debitOK {
		return 0, fmt.Errorf("unparsable debit amount %q", rec.DebitAmount)
	}
	credit, creditOK := ParseAmount(rec.CreditAmount)
	if rec.CreditAmount != "" && !creditOK {
		return 0, fmt.Errorf("unparsable credit amount %q", rec.CreditAmount)
	}
	return credit - debit, nil
}
