// Package bigquery keeps the training corpus and categorized results in a BigQuery dataset.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
)

const (
	trainingTable    = "training_transactions"
	categorizedTable = "categorized_transactions"
)

// Repository is a warehouse for training data and categorized transactions.
// It holds one BigQuery client shared by all operations.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

// New creates a Repository for projectID.datasetID.
func New(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("New: creating client: %w", err)
	}
	return &Repository{client: client, projectID: projectID, datasetID: datasetID, now: time.Now}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) table(name string) string {
	return "`" + r.projectID + "." + r.datasetID + "." + name + "`"
}

// EnsureTables creates the tables from the row schemas when they do not exist yet.
func (r *Repository) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name string
		row  any
	}{
		{trainingTable, TrainingRow{}},
		{categorizedTable, CategorizedRow{}},
	}
	for _, t := range tables {
		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return fmt.Errorf("EnsureTables: inferring %s schema: %w", t.name, err)
		}
		ref := r.client.DatasetInProject(r.projectID, r.datasetID).Table(t.name)
		err = ref.Create(ctx, &bigquery.TableMetadata{Schema: schema})
		if err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating %s: %w", t.name, err)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

// AddTrainingTransactions streams training rows into the corpus table.
func (r *Repository) AddTrainingTransactions(ctx context.Context, clientID, bookID string, txs []domain.MappedTrainingTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	now := r.now()
	rows := make([]*TrainingRow, 0, len(txs))
	for _, tx := range txs {
		tx.ClientID, tx.BookID = clientID, bookID
		rows = append(rows, NewTrainingRow(tx, now))
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(trainingTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return 0, fmt.Errorf("AddTrainingTransactions: inserting rows: %w", err)
	}
	return len(rows), nil
}

// TrainingTransactions returns the corpus of one (client, book) in insertion order.
func (r *Repository) TrainingTransactions(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error) {
	q := r.client.Query(`
		SELECT *
		FROM ` + r.table(trainingTable) + `
		WHERE client_id = @client_id AND book_id = @book_id
		ORDER BY created_ts, transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "client_id", Value: clientID},
		{Name: "book_id", Value: bookID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("TrainingTransactions: query read: %w", err)
	}

	out := []domain.MappedTrainingTransaction{}
	for {
		var row TrainingRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("TrainingTransactions: iter next: %w", err)
		}
		out = append(out, row.Domain())
	}
	return out, nil
}

// ClearTrainingTransactions deletes the corpus of one (client, book).
func (r *Repository) ClearTrainingTransactions(ctx context.Context, clientID, bookID string) error {
	q := r.client.Query(`
		DELETE FROM ` + r.table(trainingTable) + `
		WHERE client_id = @client_id AND book_id = @book_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "client_id", Value: clientID},
		{Name: "book_id", Value: bookID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("ClearTrainingTransactions: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ClearTrainingTransactions: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("ClearTrainingTransactions: job error: %w", err)
	}
	return nil
}

// WriteTransactions implements jobs.ResultSink.
func (r *Repository) WriteTransactions(ctx context.Context, job *jobs.Job, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	now := r.now()
	rows := make([]*CategorizedRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, NewCategorizedRow(job, tx, now))
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(categorizedTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("WriteTransactions: inserting rows: %w", err)
	}
	logger.FromContext(ctx).Info().Int("rows", len(rows)).Str("table", categorizedTable).Msg("Results written to warehouse")
	return nil
}

var _ jobs.ResultSink = (*Repository)(nil)
