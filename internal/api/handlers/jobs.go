package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	rules     categorize.RuleSource
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher, rules categorize.RuleSource, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:     store,
		publisher: publisher,
		rules:     rules,
		log:       log,
	}
}

type createJobRequest struct {
	FileName       string               `json:"fileName"`
	Content        string               `json:"content"`
	SourceURI      string               `json:"sourceUri"`
	ClientID       string               `json:"clientId"`
	BookID         string               `json:"bookId"`
	IndustryID     string               `json:"industryId"`
	IsTrainingData bool                 `json:"isTrainingData"`
	UseAI          bool                 `json:"useAI"`
	Mapping        domain.ColumnMapping `json:"columnMapping"`
	HeaderRow      int                  `json:"headerRow"`
	LenientDates   bool                 `json:"lenientDates"`
}

// CreateJob handles POST /api/jobs
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ClientID == "" || req.BookID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "clientId and bookId are required")
		return
	}
	if req.Content == "" && req.SourceURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "content or sourceUri is required")
		return
	}
	if req.HeaderRow < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "headerRow must not be negative")
		return
	}

	job := &jobs.Job{
		ID:             uuid.New().String(),
		FileName:       req.FileName,
		SourceURI:      req.SourceURI,
		Content:        req.Content,
		ClientID:       req.ClientID,
		BookID:         req.BookID,
		IndustryID:     req.IndustryID,
		IsTrainingData: req.IsTrainingData,
		UseAI:          req.UseAI,
		Mapping:        req.Mapping,
		HeaderRow:      req.HeaderRow,
		LenientDates:   req.LenientDates,
		CreatedAt:      time.Now(),
	}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("job_id", job.ID).Bool("training", job.IsTrainingData).Msg("Job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.load(w, r, jobID)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		ClientID: query.Get("client_id"),
		BookID:   query.Get("book_id"),
		Status:   jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	// The list omits results; fetch a single job for its transactions.
	for _, job := range list {
		job.Transactions = nil
		job.SampleRows = nil
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// SubmitMapping handles POST /api/jobs/{id}/mapping for a job awaiting a column mapping.
func (h *JobsHandler) SubmitMapping(w http.ResponseWriter, r *http.Request, jobID string) {
	var req struct {
		Mapping      domain.ColumnMapping `json:"columnMapping"`
		HeaderRow    *int                 `json:"headerRow"`
		LenientDates *bool                `json:"lenientDates"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Mapping) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "columnMapping is required")
		return
	}

	job, ok := h.load(w, r, jobID)
	if !ok {
		return
	}
	if job.Status != jobs.JobStatusAwaitingMapping && job.Status != jobs.JobStatusFailed {
		middleware.WriteError(w, http.StatusConflict, "Job is "+string(job.Status)+", not awaiting a mapping")
		return
	}

	job.Mapping = req.Mapping
	if req.HeaderRow != nil {
		job.HeaderRow = *req.HeaderRow
	}
	if req.LenientDates != nil {
		job.LenientDates = *req.LenientDates
	}
	h.requeue(w, r, job)
}

// Proceed handles POST /api/jobs/{id}/proceed for a job paused on skipped rows.
func (h *JobsHandler) Proceed(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.load(w, r, jobID)
	if !ok {
		return
	}
	if job.Status != jobs.JobStatusValidationWarning {
		middleware.WriteError(w, http.StatusConflict, "Job is "+string(job.Status)+", not waiting on validation warnings")
		return
	}
	job.ProceedWithWarnings = true
	h.requeue(w, r, job)
}

func (h *JobsHandler) requeue(w http.ResponseWriter, r *http.Request, job *jobs.Job) {
	job.RetryCount = 0
	job.Error = ""
	job.Progress = 0
	job.Headers, job.SampleRows, job.Transactions = nil, nil, nil

	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// Override handles POST /api/jobs/{id}/transactions/{txId}/override. An empty category clears the override.
func (h *JobsHandler) Override(w http.ResponseWriter, r *http.Request, jobID, txID string) {
	var req struct {
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	job, ok := h.load(w, r, jobID)
	if !ok {
		return
	}
	rs, err := h.rules.Resolve(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve rules")
		return
	}

	for i := range job.Transactions {
		if job.Transactions[i].ID != txID {
			continue
		}
		normalized, err := categorize.ApplyOverride(&job.Transactions[i], req.Category, rs)
		if errors.Is(err, categorize.ErrInvalidOverride) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to apply override")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to apply override")
			return
		}
		if err := h.store.SaveJob(ctx, job); err != nil {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to save override")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to save override")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"transaction": job.Transactions[i],
			"normalized":  normalized,
		})
		return
	}
	middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
}

// Summary handles GET /api/jobs/{id}/summary
func (h *JobsHandler) Summary(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := h.load(w, r, jobID)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, categorize.Summarize(job.Transactions))
}

func (h *JobsHandler) load(w http.ResponseWriter, r *http.Request, jobID string) (*jobs.Job, bool) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return nil, false
	}
	return job, true
}
