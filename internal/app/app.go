// Package app assembles the categorizer from configuration. The API server and the CLI
// share it so both run the same cascade against the same stores.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/ai"
	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/config"
	"github.com/dvloznov/ledger-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/review"
	"github.com/dvloznov/ledger-categorizer/internal/rulebased"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
	"github.com/dvloznov/ledger-categorizer/internal/source"
	"github.com/dvloznov/ledger-categorizer/internal/store/boltdb"
)

// App holds the long-lived components.
type App struct {
	Config *config.Config
	Store  *boltdb.Store
	Rules  *rules.Store
	Engine *categorize.Engine
	Source *source.Client

	// Warehouse is nil unless BigQuery is configured.
	Warehouse *bigquery.Repository
	// Review is nil unless a Notion review database is configured.
	Review *review.NotionSink

	log     zerolog.Logger
	closers []func() error
}

// New opens the stores and builds the engine. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	store, err := boltdb.Open(cfg.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)
	a.Rules = rules.NewStore(store, cfg.RulesCacheTTL)

	var tables *rulebased.Tables
	if cfg.RuleTablesPath != "" {
		tables, err = rulebased.LoadTables(cfg.RuleTablesPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		log.Info().Str("path", cfg.RuleTablesPath).Msg("Loaded keyword rule tables")
	}

	var corpus categorize.Corpus = store
	if cfg.WarehouseEnabled() {
		wh, err := bigquery.New(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.Warehouse = wh
		a.closers = append(a.closers, wh.Close)
		if err := wh.EnsureTables(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		corpus = bigquery.NewCorpus(store, wh)
		log.Info().Str("project", cfg.BigQueryProject).Str("dataset", cfg.BigQueryDataset).Msg("Using BigQuery corpus")
	}

	fallback, err := a.fallback(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	a.Engine = categorize.NewEngine(a.Rules, corpus, rulebased.New(tables), fallback, categorize.Options{
		ReviewThreshold: cfg.ReviewConfidenceThreshold,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	a.Source = source.New()
	a.closers = append(a.closers, a.Source.Close)

	if cfg.ReviewEnabled() {
		a.Review = review.NewNotionSink(review.NewNotionClient(cfg.NotionToken), cfg.NotionReviewDatabaseID, cfg.ReviewDryRun)
		log.Info().Bool("dry_run", cfg.ReviewDryRun).Msg("Review queue enabled")
	}

	return a, nil
}

// fallback builds the configured AI categorizer, or nil for none.
func (a *App) fallback(ctx context.Context) (ai.Categorizer, error) {
	cfg := a.Config

	var next ai.Categorizer
	switch cfg.AIProvider {
	case config.AIProviderNone, "":
		return nil, nil
	case config.AIProviderGemini:
		catalog, err := a.catalogNames(ctx)
		if err != nil {
			return nil, err
		}
		g, err := ai.NewGeminiCategorizer(ctx, cfg.GeminiModel, catalog)
		if err != nil {
			return nil, err
		}
		next = g
	case config.AIProviderAnthropic:
		catalog, err := a.catalogNames(ctx)
		if err != nil {
			return nil, err
		}
		next = ai.NewAnthropicCategorizer(cfg.AnthropicAPIKey, cfg.AnthropicModel, catalog)
	case config.AIProviderBayes:
		corpus, err := a.Store.AllTrainingTransactions(ctx)
		if err != nil {
			return nil, err
		}
		b := ai.NewBayesCategorizer(corpus)
		if !b.Ready() {
			a.log.Warn().Int("training_rows", len(corpus)).Msg("Bayes fallback needs two labeled categories; AI stage stays idle")
		}
		next = b
	default:
		return nil, fmt.Errorf("fallback: unknown AI provider %q", cfg.AIProvider)
	}

	a.log.Info().Str("provider", cfg.AIProvider).Dur("interval", cfg.AIRateInterval).Msg("AI fallback enabled")
	return ai.NewRateLimited(next, cfg.AIRateInterval, cfg.AIRateBurst, cfg.AITimeout), nil
}

func (a *App) catalogNames(ctx context.Context) ([]string, error) {
	entries, err := a.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.SpecificName)
	}
	return names, nil
}

// Catalog lists every specific category name of the active rules.
func (a *App) Catalog(ctx context.Context) ([]normalizer.CatalogEntry, error) {
	rs, err := a.Rules.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("Catalog: %w", err)
	}
	return normalizer.ListAllSpecificNames(rs), nil
}

// Processor builds a job processor reporting progress to store, which may be nil.
func (a *App) Processor(store jobs.JobStore) *jobs.Processor {
	opts := []jobs.ProcessorOption{jobs.WithFetcher(a.Source)}
	if a.Warehouse != nil {
		opts = append(opts, jobs.WithResultSink(a.Warehouse), jobs.WithTrainingMirror(a.Warehouse))
	}
	if a.Review != nil {
		opts = append(opts, jobs.WithReviewSink(a.Review))
	}
	return jobs.NewProcessor(a.Store, a.Engine, store, opts...)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
