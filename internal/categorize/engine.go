// Package categorize runs the categorization cascade over parsed records and builds
// reviewable transactions.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-categorizer/internal/ai"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
	"github.com/dvloznov/ledger-categorizer/internal/rulebased"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

// ErrBatchCanceled is returned when the context ends or the progress callback asks to stop.
var ErrBatchCanceled = errors.New("categorization batch canceled")

const (
	DefaultCurrency        = "USD"
	DefaultReviewThreshold = 0.6
)

// RuleSource resolves the current rule documents.
type RuleSource interface {
	Resolve(ctx context.Context) (*rules.RuleSet, error)
}

// Corpus reads labeled history.
type Corpus interface {
	TrainingTransactions(ctx context.Context, clientID, bookID string) ([]domain.MappedTrainingTransaction, error)
	BooksByClient(ctx context.Context, clientID string) ([]domain.Book, error)
}

// ProgressFunc is called after every record. Returning an error stops the batch.
type ProgressFunc func(percent, processed, total int) error

// Options tunes an Engine.
type Options struct {
	// ReviewThreshold flags transactions whose confidence is below it.
	ReviewThreshold float64
	// DefaultCurrency is used for records without a currency.
	DefaultCurrency string
}

// Engine categorizes batches. It holds no per-batch state and is safe for concurrent use.
type Engine struct {
	rules  RuleSource
	corpus Corpus
	stages []Stage
	opts   Options
}

// NewEngine wires the default cascade. fallback may be nil.
func NewEngine(rs RuleSource, corpus Corpus, rb *rulebased.Categorizer, fallback ai.Categorizer, opts Options) *Engine {
	if rb == nil {
		rb = rulebased.New(nil)
	}
	return NewEngineWithStages(rs, corpus, DefaultStages(rb, fallback), opts)
}

// NewEngineWithStages builds an engine with a custom cascade.
func NewEngineWithStages(rs RuleSource, corpus Corpus, stages []Stage, opts Options) *Engine {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = DefaultCurrency
	}
	if opts.ReviewThreshold == 0 {
		opts.ReviewThreshold = DefaultReviewThreshold
	}
	return &Engine{rules: rs, corpus: corpus, stages: stages, opts: opts}
}

// BookCorpus is the labeled history of one book.
type BookCorpus struct {
	Book         domain.Book
	Transactions []domain.MappedTrainingTransaction
}

// Snapshot is the rules and history one batch reads. It is taken once at batch start.
type Snapshot struct {
	Rules      *rules.RuleSet
	BookCorpus []domain.MappedTrainingTransaction
	// OtherBooks are the client's other books in the store's order.
	OtherBooks []BookCorpus
}

// Snapshot reads the rule set and the client's history for a batch.
func (e *Engine) Snapshot(ctx context.Context, client domain.Client, book domain.Book) (*Snapshot, error) {
	rs, err := e.rules.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("Snapshot: resolving rules: %w", err)
	}
	snap := &Snapshot{Rules: rs}
	if e.corpus == nil {
		return snap, nil
	}

	snap.BookCorpus, err = e.corpus.TrainingTransactions(ctx, client.ID, book.ID)
	if err != nil {
		return nil, fmt.Errorf("Snapshot: reading book history: %w", err)
	}
	books, err := e.corpus.BooksByClient(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("Snapshot: listing client books: %w", err)
	}
	for _, b := range books {
		if b.ID == book.ID {
			continue
		}
		txs, err := e.corpus.TrainingTransactions(ctx, client.ID, b.ID)
		if err != nil {
			return nil, fmt.Errorf("Snapshot: reading history of book %s: %w", b.ID, err)
		}
		snap.OtherBooks = append(snap.OtherBooks, BookCorpus{Book: b, Transactions: txs})
	}
	return snap, nil
}

// CategorizeRecord runs the cascade for one record against snap.
func (e *Engine) CategorizeRecord(ctx context.Context, snap *Snapshot, raw domain.RawTransactionRecord, industry *domain.Industry, useAI bool) domain.CategorizationResult {
	if strings.TrimSpace(raw.Description) == "" {
		return domain.CategorizationResult{
			SpecificCategory: "Unknown",
			BroadCategory:    domain.CategoryUnknown,
			Confidence:       0,
			PredictionSource: domain.SourceUnknown,
		}
	}

	state := &RecordState{Raw: raw, Snapshot: snap, Industry: industry, UseAI: useAI}
	for _, st := range e.stages {
		if res := st.Execute(ctx, state); res != nil {
			return res.Sanitize()
		}
	}

	for _, st := range e.stages {
		if rb, ok := st.(RuleBasedStage); ok {
			return rb.Categorizer.Categorize(raw, industry).Sanitize()
		}
	}
	return domain.CategorizationResult{
		SpecificCategory: "Uncategorized",
		BroadCategory:    domain.CategoryUnknown,
		Confidence:       0.1,
		TransactionType:  rulebased.TypeExpense,
		PredictionSource: domain.SourceUnknown,
	}
}

// Request is one categorization batch.
type Request struct {
	Records  []domain.RawTransactionRecord
	Client   domain.Client
	Book     domain.Book
	Industry *domain.Industry
	UseAI    bool
}

// skipReason reports why a record cannot become a transaction, or "" when it can.
func skipReason(raw domain.RawTransactionRecord) (float64, string) {
	amount, err := mapping.ResolveAmount(raw)
	if err != nil {
		return 0, err.Error()
	}
	if strings.TrimSpace(raw.Date) == "" || strings.TrimSpace(raw.Description) == "" {
		return 0, "missing date or description"
	}
	return amount, ""
}

// CategorizeBatch categorizes records strictly in order. Records without a usable amount,
// date or description are logged and left out; they still count toward progress.
func (e *Engine) CategorizeBatch(ctx context.Context, req Request, onProgress ProgressFunc) ([]domain.Transaction, error) {
	out := []domain.Transaction{}
	total := len(req.Records)
	if total == 0 {
		return out, nil
	}

	snap, err := e.Snapshot(ctx, req.Client, req.Book)
	if err != nil {
		return nil, fmt.Errorf("CategorizeBatch: %w", err)
	}
	log := logger.FromContext(ctx)

	for i, raw := range req.Records {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("CategorizeBatch: %w: %v", ErrBatchCanceled, err)
		}

		amount, reason := skipReason(raw)
		if reason != "" {
			log.Warn().Int("record", i+1).Str("reason", reason).Msg("Skipping record")
		} else {
			res := e.CategorizeRecord(ctx, snap, raw, req.Industry, req.UseAI)
			out = append(out, e.newTransaction(raw, amount, res))
		}

		processed := i + 1
		if onProgress != nil {
			percent := int(math.Round(float64(processed) / float64(total) * 100))
			if err := onProgress(percent, processed, total); err != nil {
				return out, fmt.Errorf("CategorizeBatch: %w: %v", ErrBatchCanceled, err)
			}
		}
	}
	return out, nil
}

func (e *Engine) newTransaction(raw domain.RawTransactionRecord, amount float64, res domain.CategorizationResult) domain.Transaction {
	currency := strings.TrimSpace(raw.Currency)
	if currency == "" {
		currency = e.opts.DefaultCurrency
	}
	return domain.Transaction{
		ID:                        uuid.NewString(),
		Date:                      raw.Date,
		Description:               raw.Description,
		Amount:                    amount,
		Currency:                  currency,
		SpecificCategory:          res.SpecificCategory,
		BroadCategory:             res.BroadCategory,
		ConfidenceScore:           res.Confidence,
		IsFlagged:                 res.Confidence < e.opts.ReviewThreshold || res.BroadCategory == domain.CategoryUnknown,
		AITransactionType:         res.TransactionType,
		AIVendorCustomerName:      res.VendorCustomerName,
		PredictionSource:          res.PredictionSource,
		SuggestedSpecificCategory: res.SuggestedSpecificCategory,
		SuggestedBroadCategory:    res.SuggestedBroadCategory,
	}
}
