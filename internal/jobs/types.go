package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// ErrJobNotFound is returned by stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusIdle is a job that has been created but not submitted.
	JobStatusIdle JobStatus = "Idle"
	// JobStatusQueued indicates the job is waiting for a worker.
	JobStatusQueued JobStatus = "Queued"
	// JobStatusValidating indicates the input is being parsed against the column mapping.
	JobStatusValidating JobStatus = "Validating"
	// JobStatusAwaitingMapping indicates no column mapping is known for the input.
	JobStatusAwaitingMapping JobStatus = "Awaiting Mapping"
	// JobStatusValidationWarning indicates some rows were skipped and the job waits for confirmation.
	JobStatusValidationWarning JobStatus = "Validation Warning"
	// JobStatusProcessing indicates transactions are being categorized.
	JobStatusProcessing JobStatus = "Processing"
	// JobStatusCompleted indicates the job finished and nothing needs review.
	JobStatusCompleted JobStatus = "Completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "Failed"
	// JobStatusPendingReview indicates the job finished with flagged transactions.
	JobStatusPendingReview JobStatus = "Pending Review"
)

// Terminal reports whether no worker will touch the job again without user action.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusPendingReview,
		JobStatusAwaitingMapping, JobStatusValidationWarning:
		return true
	}
	return false
}

// Job is one uploaded file to categorize or to learn from.
type Job struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`

	// FileName is the name of the uploaded file.
	FileName string `json:"fileName"`

	// SourceURI points at the input when it is not inlined (gs://bucket/object or a local path).
	SourceURI string `json:"sourceUri,omitempty"`

	// Content is the inlined input text.
	Content string `json:"-"`

	ClientID   string `json:"clientId"`
	BookID     string `json:"bookId"`
	IndustryID string `json:"industryId,omitempty"`

	// IsTrainingData makes the job add labeled history instead of categorizing.
	IsTrainingData bool `json:"isTrainingData"`

	// UseAI lets the cascade consult the AI fallback.
	UseAI bool `json:"useAI"`

	// Mapping is the column mapping; empty means use the book's saved mapping.
	Mapping domain.ColumnMapping `json:"columnMapping,omitempty"`

	// HeaderRow is the 0-based line that holds the headers.
	HeaderRow int `json:"headerRow,omitempty"`

	// LenientDates keeps rows whose date cannot be parsed, reporting them as warnings.
	LenientDates bool `json:"lenientDates,omitempty"`

	// ProceedWithWarnings continues past skipped rows instead of pausing in Validation Warning.
	ProceedWithWarnings bool `json:"proceedWithWarnings,omitempty"`

	Status JobStatus `json:"status"`

	// Progress is 0-100. Validation covers the first half, categorization the second.
	Progress      int `json:"progress"`
	TotalRows     int `json:"totalRows"`
	ValidRows     int `json:"validRows"`
	ProcessedRows int `json:"processedRows"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"errorMessage,omitempty"`

	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`

	ValidationReport *domain.ValidationReport `json:"validationReport,omitempty"`
	Transactions     []domain.Transaction     `json:"transactions,omitempty"`

	// Headers and SampleRows are filled when the job awaits a mapping.
	Headers    []string   `json:"headers,omitempty"`
	SampleRows [][]string `json:"sampleRows,omitempty"`
}

// Clone returns a copy that shares no slices or maps with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Mapping != nil {
		c.Mapping = make(domain.ColumnMapping, len(j.Mapping))
		for k, v := range j.Mapping {
			c.Mapping[k] = v
		}
	}
	if j.Transactions != nil {
		c.Transactions = append([]domain.Transaction(nil), j.Transactions...)
	}
	if j.ValidationReport != nil {
		r := *j.ValidationReport
		c.ValidationReport = &r
	}
	c.Headers = append([]string(nil), j.Headers...)
	c.SampleRows = append([][]string(nil), j.SampleRows...)
	return &c
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a job for asynchronous processing.
	Publish(ctx context.Context, job *Job) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It records business outcomes on the job itself and
// returns an error only when the job should be retried.
type JobHandler func(ctx context.Context, job *Job) error

// JobStore defines the interface for storing and retrieving job state.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error

	// UpdateProgress records progress of a running job.
	UpdateProgress(ctx context.Context, jobID string, progress, processedRows int) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	ClientID string
	BookID   string
	Status   JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Matches reports whether j passes the filter's criteria, ignoring paging.
func (f JobFilter) Matches(j *Job) bool {
	if f.ClientID != "" && j.ClientID != f.ClientID {
		return false
	}
	if f.BookID != "" && j.BookID != f.BookID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// Page applies Offset and Limit.
func (f JobFilter) Page(list []*Job) []*Job {
	if f.Offset > 0 {
		if f.Offset >= len(list) {
			return []*Job{}
		}
		list = list[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(list) {
		list = list[:f.Limit]
	}
	return list
}
