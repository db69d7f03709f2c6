package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart; the sqlite store persists jobs.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.Job
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.Job),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep a copy so callers cannot mutate stored state
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.Job{}
	for _, job := range s.jobs {
		if filter.Matches(job) {
			result = append(result, job.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return filter.Page(result), nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("UpdateJobStatus: %w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed || status == jobs.JobStatusPendingReview {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

// UpdateProgress implements the JobStore interface.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress, processedRows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("UpdateProgress: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	job.Progress = progress
	job.ProcessedRows = processedRows
	return nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
