package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/logger"
)

// DefaultWorkers is the number of concurrent workers when none is configured.
const DefaultWorkers = 5

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Each job is handled by one worker; records within a job are processed in order.
type Queue struct {
	jobChan   chan *jobs.Job
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	backoff   time.Duration
	logger    zerolog.Logger
	closed    bool
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before Publish blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore, log zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan:   make(chan *jobs.Job, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		backoff:   time.Second,
		logger:    log,
	}
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, job *jobs.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = jobs.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.Job, handler jobs.JobHandler) {
	log := logger.ForJob(q.logger, job.ID, job.ClientID, job.BookID)
	ctx = logger.WithContext(ctx, log)

	now := time.Now()
	job.StartedAt = &now
	job.CompletedAt = nil
	job.Error = ""

	err := handler(ctx, job)

	if err != nil {
		job.Error = err.Error()
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusQueued
			log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Job failed, retrying")

			backoff := time.Duration(job.RetryCount) * q.backoff
			time.AfterFunc(backoff, func() {
				job.StartedAt = nil
				if perr := q.Publish(ctx, job); perr != nil {
					log.Error().Err(perr).Msg("Failed to re-enqueue job")
				}
			})
			if q.store != nil {
				_ = q.store.SaveJob(ctx, job)
			}
			return
		}
		log.Error().Err(err).Msg("Job failed")
		job.Status = jobs.JobStatusFailed
	} else if !job.Status.Terminal() {
		job.Status = jobs.JobStatusCompleted
	}

	if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed || job.Status == jobs.JobStatusPendingReview {
		completedAt := time.Now()
		job.CompletedAt = &completedAt
	}
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
