package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/categorize"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/review"
)

// ReviewQueue is where reviewers record corrected categories.
type ReviewQueue interface {
	Decisions(ctx context.Context) ([]review.Decision, error)
	MarkApplied(ctx context.Context, pageID string) error
}

// ReviewHandler applies reviewer decisions to stored jobs.
type ReviewHandler struct {
	queue ReviewQueue
	store jobs.JobStore
	rules categorize.RuleSource
	log   zerolog.Logger
}

// NewReviewHandler creates a new review handler. A nil queue disables the endpoint.
func NewReviewHandler(queue ReviewQueue, store jobs.JobStore, rules categorize.RuleSource, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		queue: queue,
		store: store,
		rules: rules,
		log:   log,
	}
}

// SyncResult reports what a review sync did.
type SyncResult struct {
	Decisions    int      `json:"decisions"`
	Applied      int      `json:"applied"`
	Unmatched    int      `json:"unmatched"`
	Rejected     []string `json:"rejected"`
	JobsResolved int      `json:"jobsResolved"`
}

// Sync handles POST /api/review/sync: reviewed pages become overrides on their jobs and are
// marked Applied. A job with nothing left flagged moves from Pending Review to Completed.
func (h *ReviewHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No review queue configured")
		return
	}
	ctx := r.Context()

	decisions, err := h.queue.Decisions(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read review decisions")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to read review decisions")
		return
	}
	res := SyncResult{Decisions: len(decisions), Rejected: []string{}}
	if len(decisions) == 0 {
		middleware.WriteJSON(w, http.StatusOK, res)
		return
	}

	rs, err := h.rules.Resolve(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve rules")
		return
	}
	list, err := h.store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	byTx := make(map[string]review.Decision, len(decisions))
	for _, d := range decisions {
		byTx[d.TransactionID] = d
	}
	var applied []string
	matched := make(map[string]bool)

	for _, summary := range list {
		// ListJobs may omit results; load the full job.
		job, err := h.store.GetJob(ctx, summary.ID)
		if err != nil {
			h.log.Warn().Err(err).Str("job_id", summary.ID).Msg("Skipping job")
			continue
		}
		changed := false
		for i := range job.Transactions {
			d, ok := byTx[job.Transactions[i].ID]
			if !ok || matched[d.TransactionID] {
				continue
			}
			matched[d.TransactionID] = true
			if _, err := categorize.ApplyOverride(&job.Transactions[i], d.Category, rs); err != nil {
				res.Rejected = append(res.Rejected, d.TransactionID+": "+err.Error())
				continue
			}
			changed = true
			applied = append(applied, d.PageID)
		}
		if !changed {
			continue
		}
		if job.Status == jobs.JobStatusPendingReview && !anyFlagged(job) {
			job.Status = jobs.JobStatusCompleted
			res.JobsResolved++
		}
		if err := h.store.SaveJob(ctx, job); err != nil {
			h.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save reviewed job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to save reviewed job")
			return
		}
	}

	for _, pageID := range applied {
		if err := h.queue.MarkApplied(ctx, pageID); err != nil {
			h.log.Warn().Err(err).Str("page_id", pageID).Msg("Failed to mark review page applied")
			continue
		}
		res.Applied++
	}
	res.Unmatched = len(byTx) - len(matched)

	h.log.Info().
		Int("decisions", res.Decisions).
		Int("applied", res.Applied).
		Int("unmatched", res.Unmatched).
		Msg("Review sync completed")
	middleware.WriteJSON(w, http.StatusOK, res)
}

func anyFlagged(job *jobs.Job) bool {
	for _, tx := range job.Transactions {
		if tx.IsFlagged {
			return true
		}
	}
	return false
}
