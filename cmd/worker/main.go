package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/app"
	"github.com/dvloznov/ledger-categorizer/internal/config"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-categorizer/internal/jobs/sqlite"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
)

// The worker processes jobs left unfinished in the job database, e.g. after the API
// server stopped with work queued. With -poll it keeps watching for new ones.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	poll := flag.Duration("poll", 0, "Poll the job database at this interval instead of exiting once drained")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel)

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize categorizer")
	}
	defer a.Close()

	jobStore, err := sqlite.Open(cfg.JobDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer jobStore.Close()

	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.Workers, jobStore, log)
	processor := a.Processor(jobStore)

	// inFlight keeps a polled job from being published twice.
	var (
		mu       sync.Mutex
		inFlight = make(map[string]bool)
		pending  sync.WaitGroup
	)
	handler := func(ctx context.Context, job *jobs.Job) error {
		err := processor.Handle(ctx, job)
		// A failed job is retried by the queue until its last attempt.
		if err == nil || job.RetryCount >= job.MaxRetries {
			mu.Lock()
			delete(inFlight, job.ID)
			mu.Unlock()
			pending.Done()
		}
		return err
	}

	log.Info().Int("workers", cfg.Workers).Str("job_db", cfg.JobDBPath).Msg("Starting worker service")
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	drain := func() {
		unfinished, err := jobStore.Unfinished(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read unfinished jobs")
			return
		}
		for _, job := range unfinished {
			mu.Lock()
			seen := inFlight[job.ID]
			inFlight[job.ID] = true
			mu.Unlock()
			if seen {
				continue
			}
			pending.Add(1)
			if err := jobQueue.Publish(ctx, job); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to publish job")
				mu.Lock()
				delete(inFlight, job.ID)
				mu.Unlock()
				pending.Done()
				continue
			}
			log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Picked up unfinished job")
		}
	}

	drain()
	if *poll > 0 {
		ticker := time.NewTicker(*poll)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				drain()
			}
		}
	} else {
		done := make(chan struct{})
		go func() {
			pending.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
		case <-done:
			log.Info().Msg("All unfinished jobs processed")
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
	os.Exit(0)
}
