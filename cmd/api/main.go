package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/api"
	"github.com/dvloznov/ledger-categorizer/internal/api/handlers"
	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/app"
	"github.com/dvloznov/ledger-categorizer/internal/config"
	"github.com/dvloznov/ledger-categorizer/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-categorizer/internal/jobs/sqlite"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize categorizer")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore, err := sqlite.Open(cfg.JobDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer jobStore.Close()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.Workers, jobStore, log)
	processor := a.Processor(jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, processor.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	// Jobs a previous process accepted but did not finish go back on the queue.
	unfinished, err := jobStore.Unfinished(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read unfinished jobs")
	}
	go func() {
		for _, job := range unfinished {
			if err := jobQueue.Publish(workerCtx, job); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to resume job")
				continue
			}
			log.Info().Str("job_id", job.ID).Msg("Resumed unfinished job")
		}
	}()

	// Initialize handlers
	var reviewQueue handlers.ReviewQueue
	if a.Review != nil {
		reviewQueue = a.Review
	}
	var mirror handlers.TrainingClearer
	if a.Warehouse != nil {
		mirror = a.Warehouse
	}
	mux := api.NewRouter(api.Handlers{
		Jobs:      handlers.NewJobsHandler(jobStore, jobQueue, a.Rules, log),
		Entities:  handlers.NewEntitiesHandler(a.Store, mirror, log),
		Rules:     handlers.NewRulesHandler(a.Rules, log),
		Tools:     handlers.NewToolsHandler(a.Source, log),
		Templates: handlers.NewTemplatesHandler(a.Store, log),
		Exchange:  handlers.NewExchangeHandler(a.Store, a.Rules, a.Source, cfg.GCSBucket, log),
		Review:    handlers.NewReviewHandler(reviewQueue, jobStore, a.Rules, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(mux, log, cfg.APIToken),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
