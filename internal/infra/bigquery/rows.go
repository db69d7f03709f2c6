package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
)

// TrainingRow is one labeled transaction in the training_transactions table.
type TrainingRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	ClientID      string `bigquery:"client_id"`      // REQUIRED
	BookID        string `bigquery:"book_id"`        // REQUIRED

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"` // NULLABLE, set when RawDate parses
	RawDate         string            `bigquery:"raw_date"`

	Description string              `bigquery:"description"`
	Amount      *big.Rat            `bigquery:"amount"` // NUMERIC
	Currency    bigquery.NullString `bigquery:"currency"`

	Category           string `bigquery:"category"`
	VendorCustomerName string `bigquery:"vendor_customer_name"`
	TransactionType    string `bigquery:"transaction_type"`

	ReferenceNumber      bigquery.NullString `bigquery:"reference_number"`
	AccountNumber        bigquery.NullString `bigquery:"account_number"`
	ChartOfAccountNumber bigquery.NullString `bigquery:"coa_number"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// CategorizedRow is one engine result in the categorized_transactions table.
type CategorizedRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	JobID         string `bigquery:"job_id"`
	ClientID      string `bigquery:"client_id"`
	BookID        string `bigquery:"book_id"`
	FileName      string `bigquery:"file_name"`

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"`
	RawDate         string            `bigquery:"raw_date"`

	Description string   `bigquery:"description"`
	Amount      *big.Rat `bigquery:"amount"`
	Currency    string   `bigquery:"currency"`

	SpecificCategory string  `bigquery:"specific_category"`
	BroadCategory    string  `bigquery:"broad_category"`
	Confidence       float64 `bigquery:"confidence"`
	PredictionSource string  `bigquery:"prediction_source"`
	IsFlagged        bool    `bigquery:"is_flagged"`

	UserOverrideCategory bigquery.NullString `bigquery:"user_override_category"`
	SuggestedCategory    bigquery.NullString `bigquery:"suggested_category"`
	Notes                bigquery.NullString `bigquery:"notes"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullDate(raw string) bigquery.NullDate {
	t, ok := mapping.ParseDate(raw)
	if !ok {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(t), Valid: true}
}

func ratOf(f float64) *big.Rat {
	r := new(big.Rat)
	if r.SetFloat64(f) == nil {
		return new(big.Rat)
	}
	return r
}

func floatOf(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}

// NewTrainingRow converts a training transaction for insertion.
func NewTrainingRow(tx domain.MappedTrainingTransaction, now time.Time) *TrainingRow {
	return &TrainingRow{
		TransactionID:        tx.ID,
		ClientID:             tx.ClientID,
		BookID:               tx.BookID,
		TransactionDate:      nullDate(tx.Date),
		RawDate:              tx.Date,
		Description:          tx.Description,
		Amount:               ratOf(tx.Amount),
		Currency:             nullString(tx.Currency),
		Category:             tx.Category,
		VendorCustomerName:   tx.VendorCustomerName,
		TransactionType:      tx.TransactionType,
		ReferenceNumber:      nullString(tx.ReferenceNumber),
		AccountNumber:        nullString(tx.AccountNumber),
		ChartOfAccountNumber: nullString(tx.ChartOfAccountNumber),
		CreatedTS:            now,
	}
}

// Domain converts the row back to a training transaction.
func (r *TrainingRow) Domain() domain.MappedTrainingTransaction {
	return domain.MappedTrainingTransaction{
		ID:                   r.TransactionID,
		Date:                 r.RawDate,
		Description:          r.Description,
		Amount:               floatOf(r.Amount),
		Currency:             r.Currency.StringVal,
		Category:             r.Category,
		VendorCustomerName:   r.VendorCustomerName,
		TransactionType:      r.TransactionType,
		ReferenceNumber:      r.ReferenceNumber.StringVal,
		AccountNumber:        r.AccountNumber.StringVal,
		ChartOfAccountNumber: r.ChartOfAccountNumber.StringVal,
		ClientID:             r.ClientID,
		BookID:               r.BookID,
	}
}

// NewCategorizedRow converts one result of job for insertion.
func NewCategorizedRow(job *jobs.Job, tx domain.Transaction, now time.Time) *CategorizedRow {
	suggestion := tx.SuggestedSpecificCategory
	if suggestion != "" && tx.SuggestedBroadCategory != "" {
		suggestion += " (" + string(tx.SuggestedBroadCategory) + ")"
	}
	return &CategorizedRow{
		TransactionID:        tx.ID,
		JobID:                job.ID,
		ClientID:             job.ClientID,
		BookID:               job.BookID,
		FileName:             job.FileName,
		TransactionDate:      nullDate(tx.Date),
		RawDate:              tx.Date,
		Description:          tx.Description,
		Amount:               ratOf(tx.Amount),
		Currency:             tx.Currency,
		SpecificCategory:     tx.SpecificCategory,
		BroadCategory:        string(tx.BroadCategory),
		Confidence:           tx.ConfidenceScore,
		PredictionSource:     string(tx.PredictionSource),
		IsFlagged:            tx.IsFlagged,
		UserOverrideCategory: nullString(tx.UserOverrideCategory),
		SuggestedCategory:    nullString(suggestion),
		Notes:                nullString(tx.Notes),
		CreatedTS:            now,
	}
}
