package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
	"github.com/dvloznov/ledger-categorizer/internal/quality"
)

// SampleRows is how many rows a job awaiting a mapping keeps for the mapping UI.
const SampleRows = 5

// Repository is the entity storage a job reads its context from and writes training data to.
type Repository interface {
	GetClient(ctx context.Context, id string) (domain.Client, error)
	GetBook(ctx context.Context, id string) (domain.Book, error)
	GetIndustry(ctx context.Context, id string) (domain.Industry, error)
	GetColumnMapping(ctx context.Context, clientID, bookID string) (domain.ColumnMapping, error)
	SaveColumnMapping(ctx context.Context, clientID, bookID string, m domain.ColumnMapping) error
	AddTrainingTransactions(ctx context.Context, clientID, bookID string, txs []domain.MappedTrainingTransaction) (int, error)
}

// Categorizer runs a categorization batch.
type Categorizer interface {
	CategorizeBatch(ctx context.Context, req categorize.Request, onProgress categorize.ProgressFunc) ([]domain.Transaction, error)
}

// Fetcher reads job input that is referenced by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ResultSink receives the transactions of a finished job.
type ResultSink interface {
	WriteTransactions(ctx context.Context, job *Job, txs []domain.Transaction) error
}

// TrainingMirror receives a copy of stored training data, e.g. a warehouse.
type TrainingMirror interface {
	AddTrainingTransactions(ctx context.Context, clientID, bookID string, txs []domain.MappedTrainingTransaction) (int, error)
}

// ReviewSink receives flagged transactions for human review.
type ReviewSink interface {
	PushForReview(ctx context.Context, client domain.Client, book domain.Book, txs []domain.Transaction) (int, error)
}

// Processor turns queued jobs into categorized transactions or training data.
type Processor struct {
	repo    Repository
	engine  Categorizer
	store   JobStore
	fetcher Fetcher
	results ResultSink
	review  ReviewSink
	mirror  TrainingMirror
}

// ProcessorOption configures optional collaborators.
type ProcessorOption func(*Processor)

// WithFetcher lets jobs reference their input by URI.
func WithFetcher(f Fetcher) ProcessorOption { return func(p *Processor) { p.fetcher = f } }

// WithResultSink copies finished transactions to a sink.
func WithResultSink(s ResultSink) ProcessorOption { return func(p *Processor) { p.results = s } }

// WithReviewSink pushes flagged transactions to a review queue.
func WithReviewSink(s ReviewSink) ProcessorOption { return func(p *Processor) { p.review = s } }

// WithTrainingMirror copies stored training data to a second store.
func WithTrainingMirror(m TrainingMirror) ProcessorOption { return func(p *Processor) { p.mirror = m } }

// NewProcessor creates a Processor. store receives progress updates and may be nil.
func NewProcessor(repo Repository, engine Categorizer, store JobStore, opts ...ProcessorOption) *Processor {
	p := &Processor{repo: repo, engine: engine, store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle implements JobHandler. Problems with the input end the job as Failed and return nil;
// only infrastructure errors are returned so the queue retries them.
func (p *Processor) Handle(ctx context.Context, job *Job) error {
	log := logger.FromContext(ctx)

	client, err := p.repo.GetClient(ctx, job.ClientID)
	if err != nil {
		p.fail(job, fmt.Sprintf("Client %s not found: %v", job.ClientID, err))
		return nil
	}
	book, err := p.repo.GetBook(ctx, job.BookID)
	if err != nil || book.ClientID != client.ID {
		p.fail(job, fmt.Sprintf("Book %s not found for client %s", job.BookID, client.Name))
		return nil
	}
	var industry *domain.Industry
	if job.IndustryID != "" {
		ind, err := p.repo.GetIndustry(ctx, job.IndustryID)
		if err != nil {
			p.fail(job, fmt.Sprintf("Industry %s not found", job.IndustryID))
			return nil
		}
		industry = &ind
	}

	text, err := p.content(ctx, job)
	if err != nil {
		return fmt.Errorf("Handle: reading input: %w", err)
	}

	p.setStatus(ctx, job, JobStatusValidating, 10)

	if len(job.Mapping) == 0 {
		saved, err := p.repo.GetColumnMapping(ctx, client.ID, book.ID)
		if err != nil {
			return fmt.Errorf("Handle: reading saved mapping: %w", err)
		}
		job.Mapping = saved
	}
	opts := mapping.Options{HeaderRow: job.HeaderRow, LenientDates: job.LenientDates}
	if len(job.Mapping) == 0 {
		headers, sample, err := mapping.Preview(text, SampleRows, opts)
		if err != nil {
			p.fail(job, err.Error())
			return nil
		}
		job.Headers, job.SampleRows = headers, sample
		job.Status = JobStatusAwaitingMapping
		log.Info().Int("headers", len(headers)).Msg("Job awaits a column mapping")
		return nil
	}

	if job.IsTrainingData {
		return p.train(ctx, job, text, client, book, opts)
	}
	return p.categorize(ctx, job, text, client, book, industry, opts)
}

func (p *Processor) content(ctx context.Context, job *Job) (string, error) {
	if job.Content != "" || job.SourceURI == "" {
		return job.Content, nil
	}
	if p.fetcher == nil {
		return "", errors.New("no fetcher configured for " + job.SourceURI)
	}
	data, err := p.fetcher.Fetch(ctx, job.SourceURI)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Processor) train(ctx context.Context, job *Job, text string, client domain.Client, book domain.Book, opts mapping.Options) error {
	res, err := mapping.ParseTrainingDataWithMapping(text, job.Mapping, client.ID, book.ID, mapping.TrainingFields, opts)
	if res != nil {
		job.ValidationReport = res.Report
	}
	if err != nil {
		p.fail(job, err.Error())
		return nil
	}
	job.TotalRows = len(res.Records) + res.Report.SkippedRowCount
	job.ValidRows = len(res.Records)
	if len(res.Records) == 0 {
		p.fail(job, "No valid training rows found after applying column mapping.")
		return nil
	}

	added, err := p.repo.AddTrainingTransactions(ctx, client.ID, book.ID, res.Records)
	if err != nil {
		return fmt.Errorf("train: storing training data: %w", err)
	}
	if err := p.repo.SaveColumnMapping(ctx, client.ID, book.ID, job.Mapping); err != nil {
		return fmt.Errorf("train: saving mapping: %w", err)
	}
	if p.mirror != nil {
		if _, err := p.mirror.AddTrainingTransactions(ctx, client.ID, book.ID, res.Records); err != nil {
			logger.FromContext(ctx).Error().Err(err).Msg("Failed to mirror training data")
		}
	}

	job.ProcessedRows = added
	job.Progress = 100
	job.Status = JobStatusCompleted
	logger.FromContext(ctx).Info().Int("added", added).Int("skipped", res.Report.SkippedRowCount).Msg("Training data stored")
	return nil
}

func (p *Processor) categorize(ctx context.Context, job *Job, text string, client domain.Client, book domain.Book, industry *domain.Industry, opts mapping.Options) error {
	log := logger.FromContext(ctx)

	res, err := mapping.ParseWithMapping(text, job.Mapping, mapping.StandardProcessingFields, opts)
	if res != nil {
		job.ValidationReport = res.Report
	}
	if err != nil {
		p.fail(job, err.Error())
		return nil
	}
	job.TotalRows = len(res.Records) + res.Report.SkippedRowCount
	job.ValidRows = len(res.Records)

	analysis := quality.Analyze(res.Records, res.Report)
	job.ValidationReport = analysis.Report
	log.Info().Int("quality_score", analysis.Metrics.QualityScore).Int("issues", len(analysis.Issues)).Msg("Data quality analyzed")

	switch {
	case len(res.Records) == 0 && res.Report.SkippedRowCount > 0:
		p.fail(job, fmt.Sprintf("All %d data rows failed validation after mapping. Please check mapping and file format.", job.TotalRows))
		return nil
	case len(res.Records) == 0:
		p.fail(job, "No data found to process after applying column mapping.")
		return nil
	case res.Report.SkippedRowCount > 0 && !job.ProceedWithWarnings:
		job.Status = JobStatusValidationWarning
		job.Progress = 50
		return nil
	}

	if err := p.repo.SaveColumnMapping(ctx, client.ID, book.ID, job.Mapping); err != nil {
		return fmt.Errorf("categorize: saving mapping: %w", err)
	}
	p.setStatus(ctx, job, JobStatusProcessing, 50)

	txs, err := p.engine.CategorizeBatch(ctx, categorize.Request{
		Records:  res.Records,
		Client:   client,
		Book:     book,
		Industry: industry,
		UseAI:    job.UseAI,
	}, func(percent, processed, total int) error {
		job.Progress = 50 + int(math.Round(float64(percent)*0.5))
		job.ProcessedRows = processed
		if p.store != nil {
			if err := p.store.UpdateProgress(ctx, job.ID, job.Progress, processed); err != nil {
				log.Warn().Err(err).Msg("Failed to record progress")
			}
		}
		return ctx.Err()
	})
	if err != nil {
		if errors.Is(err, categorize.ErrBatchCanceled) && ctx.Err() != nil {
			return err
		}
		p.fail(job, err.Error())
		return nil
	}

	job.Transactions = txs
	job.ProcessedRows = len(txs)
	job.Progress = 100

	flagged := flaggedOf(txs)
	if p.results != nil {
		if err := p.results.WriteTransactions(ctx, job, txs); err != nil {
			log.Error().Err(err).Msg("Failed to write results to sink")
		}
	}
	if p.review != nil && len(flagged) > 0 {
		pushed, err := p.review.PushForReview(ctx, client, book, flagged)
		if err != nil {
			log.Error().Err(err).Msg("Failed to push flagged transactions for review")
		} else {
			log.Info().Int("pushed", pushed).Msg("Flagged transactions pushed for review")
		}
	}

	summary := categorize.Summarize(txs)
	log.Info().
		Int("total", summary.Total).
		Int("flagged", summary.Flagged).
		Float64("avg_confidence", summary.AverageConfidence).
		Msg("Categorization finished")

	if len(flagged) > 0 {
		job.Status = JobStatusPendingReview
	} else {
		job.Status = JobStatusCompleted
	}
	return nil
}

func flaggedOf(txs []domain.Transaction) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range txs {
		if tx.IsFlagged {
			out = append(out, tx)
		}
	}
	return out
}

func (p *Processor) fail(job *Job, msg string) {
	job.Status = JobStatusFailed
	job.Error = msg
	job.Progress = 100
}

func (p *Processor) setStatus(ctx context.Context, job *Job, status JobStatus, progress int) {
	job.Status = status
	job.Progress = progress
	if p.store == nil {
		return
	}
	if err := p.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("status", string(status)).Msg("Failed to record job status")
	}
}
