package domain

import (
	"fmt"
	"strings"
)

// TargetField identifies one semantic column a user can map a file header to.
type TargetField int

const (
	FieldDate TargetField = iota + 1
	FieldDescription
	FieldAmount
	FieldDebitAmount
	FieldCreditAmount
	FieldCurrency
	FieldTransactionType
	FieldReferenceNumber
	FieldAccountNumber
	FieldVendorCustomerName
	FieldChartOfAccount
	FieldChartOfAccountNumber
)

var targetFieldKeys = map[TargetField]string{
	FieldDate:                 "date",
	FieldDescription:          "description",
	FieldAmount:               "amount",
	FieldDebitAmount:          "debitAmount",
	FieldCreditAmount:         "creditAmount",
	FieldCurrency:             "currency",
	FieldTransactionType:      "transactionType",
	FieldReferenceNumber:      "referenceNumber",
	FieldAccountNumber:        "accountNumber",
	FieldVendorCustomerName:   "vendorCustomerName",
	FieldChartOfAccount:       "chartOfAccount",
	FieldChartOfAccountNumber: "chartOfAccountNumber",
}

// TargetFields lists every target field in declaration order.
var TargetFields = []TargetField{
	FieldDate,
	FieldDescription,
	FieldAmount,
	FieldDebitAmount,
	FieldCreditAmount,
	FieldCurrency,
	FieldTransactionType,
	FieldReferenceNumber,
	FieldAccountNumber,
	FieldVendorCustomerName,
	FieldChartOfAccount,
	FieldChartOfAccountNumber,
}

// Key returns the wire key of the field.
func (f TargetField) Key() string {
	if k, ok := targetFieldKeys[f]; ok {
		return k
	}
	return fmt.Sprintf("field(%d)", int(f))
}

func (f TargetField) String() string {
	return f.Key()
}

// ParseTargetField resolves a wire key case-insensitively, so "Date" and "date" are the same field.
func ParseTargetField(key string) (TargetField, error) {
	key = strings.TrimSpace(key)
	for f, k := range targetFieldKeys {
		if strings.EqualFold(k, key) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown target field %q", key)
}

// MarshalText implements encoding.TextMarshaler so fields can key JSON objects.
func (f TargetField) MarshalText() ([]byte, error) {
	if _, ok := targetFieldKeys[f]; !ok {
		return nil, fmt.Errorf("unknown target field %d", int(f))
	}
	return []byte(f.Key()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *TargetField) UnmarshalText(b []byte) error {
	parsed, err := ParseTargetField(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// RawTransactionRecord is one normalized row produced by the column mapper.
// Values are trimmed cell contents; an empty string means the field was absent or blank.
type RawTransactionRecord struct {
	Date                 string `json:"date,omitempty"`
	Description          string `json:"description,omitempty"`
	Amount               string `json:"amount,omitempty"`
	DebitAmount          string `json:"debitAmount,omitempty"`
	CreditAmount         string `json:"creditAmount,omitempty"`
	Currency             string `json:"currency,omitempty"`
	TransactionType      string `json:"transactionType,omitempty"`
	ReferenceNumber      string `json:"referenceNumber,omitempty"`
	AccountNumber        string `json:"accountNumber,omitempty"`
	VendorCustomerName   string `json:"vendorCustomerName,omitempty"`
	ChartOfAccount       string `json:"chartOfAccount,omitempty"`
	ChartOfAccountNumber string `json:"chartOfAccountNumber,omitempty"`
}

// Get returns the value stored for a field.
func (r RawTransactionRecord) Get(f TargetField) string {
	switch f {
	case FieldDate:
		return r.Date
	case FieldDescription:
		return r.Description
	case FieldAmount:
		return r.Amount
	case FieldDebitAmount:
		return r.DebitAmount
	case FieldCreditAmount:
		return r.CreditAmount
	case FieldCurrency:
		return r.Currency
	case FieldTransactionType:
		return r.TransactionType
	case FieldReferenceNumber:
		return r.ReferenceNumber
	case FieldAccountNumber:
		return r.AccountNumber
	case FieldVendorCustomerName:
		return r.VendorCustomerName
	case FieldChartOfAccount:
		return r.ChartOfAccount
	case FieldChartOfAccountNumber:
		return r.ChartOfAccountNumber
	}
	return ""
}

// With returns a copy of the record with one field replaced.
func (r RawTransactionRecord) With(f TargetField, v string) RawTransactionRecord {
	switch f {
	case FieldDate:
		r.Date = v
	case FieldDescription:
		r.Description = v
	case FieldAmount:
		r.Amount = v
	case FieldDebitAmount:
		r.DebitAmount = v
	case FieldCreditAmount:
		r.CreditAmount = v
	case FieldCurrency:
		r.Currency = v
	case FieldTransactionType:
		r.TransactionType = v
	case FieldReferenceNumber:
		r.ReferenceNumber = v
	case FieldAccountNumber:
		r.AccountNumber = v
	case FieldVendorCustomerName:
		r.VendorCustomerName = v
	case FieldChartOfAccount:
		r.ChartOfAccount = v
	case FieldChartOfAccountNumber:
		r.ChartOfAccountNumber = v
	}
	return r
}

// FilledCount counts non-blank fields.
func (r RawTransactionRecord) FilledCount() int {
	n := 0
	for _, f := range TargetFields {
		if strings.TrimSpace(r.Get(f)) != "" {
			n++
		}
	}
	return n
}
