// Package mapping turns delimited text plus a user column mapping into normalized records
// and a per-row validation report.
package mapping

import "github.com/dvloznov/ledger-categorizer/internal/domain"

// GroupAmountHandling marks the fields that together supply a transaction amount.
const GroupAmountHandling = "amountHandling"

// FieldConfig describes one target field offered to the user for mapping.
type FieldConfig struct {
	Field     domain.TargetField `json:"key"`
	Label     string             `json:"label"`
	Mandatory bool               `json:"mandatory"`
	Group     string             `json:"group,omitempty"`
	Info      string             `json:"info,omitempty"`
	// MissingReason replaces the default skip reason when a mandatory value is blank.
	MissingReason string `json:"-"`
}

// StandardProcessingFields are the fields of a file to be categorized.
// The amount group is mandatory as a whole: either Amount or Debit/Credit must be mapped.
var StandardProcessingFields = []FieldConfig{
	{Field: domain.FieldDate, Label: "Transaction Date", Mandatory: true, Info: "e.g., YYYY-MM-DD or MM/DD/YYYY"},
	{Field: domain.FieldDescription, Label: "Memo/Description", Mandatory: true, Info: "Details of the transaction."},
	{Field: domain.FieldAmount, Label: "Amount (Single Column)", Mandatory: true, Group: GroupAmountHandling, Info: "Net amount. For expenses/debits, use negative numbers if not using separate Debit/Credit columns. For income/credits, use positive."},
	{Field: domain.FieldDebitAmount, Label: "Debit Amount (Optional)", Group: GroupAmountHandling, Info: "Use if your file has separate columns. Typically represents expenses or outflows."},
	{Field: domain.FieldCreditAmount, Label: "Credit Amount (Optional)", Group: GroupAmountHandling, Info: "Use if your file has separate columns. Typically represents income or inflows."},
	{Field: domain.FieldCurrency, Label: "Currency Code (e.g., USD)", Info: "ISO currency code. Defaults to USD if not provided."},
	{Field: domain.FieldTransactionType, Label: "Transaction Type (Optional)", Info: "e.g., ACH, Wire, Check, Sale"},
	{Field: domain.FieldReferenceNumber, Label: "Reference Number (Optional)", Info: "Check number, invoice ID, etc."},
	{Field: domain.FieldAccountNumber, Label: "Account Number (Optional)", Info: "Bank or internal account number related to the transaction."},
	{Field: domain.FieldVendorCustomerName, Label: "Vendor/Customer Name (Optional)", Info: "Name of the vendor or customer involved."},
}

// TrainingFields are the fields of a labeled training file. Every label column is mandatory.
var TrainingFields = []FieldConfig{
	{Field: domain.FieldDate, Label: "Transaction Date", Mandatory: true, Info: "e.g., YYYY-MM-DD or MM/DD/YYYY", MissingReason: "Missing mapped Date"},
	{Field: domain.FieldDescription, Label: "Memo/Description", Mandatory: true, Info: "Details of the transaction.", MissingReason: "Missing mapped Description"},
	{Field: domain.FieldChartOfAccount, Label: "Chart of Account (Target Category)", Mandatory: true, Info: "The accounting category name for training.", MissingReason: "Missing mapped Chart of Account (Category)"},
	{Field: domain.FieldVendorCustomerName, Label: "Vendor/Customer Name", Mandatory: true, Info: "Name of the vendor or customer.", MissingReason: "Missing mapped Vendor/Customer Name"},
	{Field: domain.FieldTransactionType, Label: "Type of Transaction", Mandatory: true, Info: "e.g., ACH, Wire, Check, Sale, Purchase.", MissingReason: "Missing mapped Type of Transaction"},
	{Field: domain.FieldAmount, Label: "Amount (Single Column)", Group: GroupAmountHandling, Info: "Net amount. For expenses/debits, use negative numbers or ensure your Debit/Credit columns are used."},
	{Field: domain.FieldDebitAmount, Label: "Debit Amount (Optional)", Group: GroupAmountHandling, Info: "Use if your file has separate columns for debits."},
	{Field: domain.FieldCreditAmount, Label: "Credit Amount (Optional)", Group: GroupAmountHandling, Info: "Use if your file has separate columns for credits."},
	{Field: domain.FieldReferenceNumber, Label: "Reference Number (Optional)", Info: "Check number, invoice ID, etc."},
	{Field: domain.FieldAccountNumber, Label: "Account Number (Optional)", Info: "Bank or internal account number related to the transaction."},
	{Field: domain.FieldChartOfAccountNumber, Label: "Chart of Account Number (Optional)", Info: "Account number corresponding to the Chart of Account."},
	{Field: domain.FieldCurrency, Label: "Currency Code (e.g., USD)", Info: "ISO currency code. Defaults to USD if not provided."},
}

func (fc FieldConfig) missingReason() string {
	if fc.MissingReason != "" {
		return fc.MissingReason
	}
	return "Missing mandatory field: " + fc.Label
}

func amountGroupMandatory(configs []FieldConfig) bool {
	for _, fc := range configs {
		if fc.Group == GroupAmountHandling && fc.Mandatory {
			return true
		}
	}
	return false
}

// amountMessages are the skip reasons for amount problems; the two upload kinds word them differently.
type amountMessages struct {
	missingSingle string
	missingSplit  string
	notMapped     string
}

var standardAmountMessages = amountMessages{
	missingSingle: "Missing mandatory field: Amount",
	missingSplit:  "Missing mandatory Debit/Credit Amount data",
	notMapped:     "Amount (single or Debit/Credit) must be mapped and provided.",
}

var trainingAmountMessages = amountMessages{
	missingSingle: "Missing mapped Amount data",
	missingSplit:  "Missing mapped Debit/Credit Amount data",
	notMapped:     "Amount (single or Debit/Credit) is not mapped.",
}
