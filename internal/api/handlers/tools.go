package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/jobs"
	"github.com/dvloznov/ledger-categorizer/internal/mapping"
	"github.com/dvloznov/ledger-categorizer/internal/quality"
)

// DefaultPreviewRows is the sample size when a preview request names none.
const DefaultPreviewRows = 5

// ToolsHandler serves the stateless file helpers used while setting up a mapping.
type ToolsHandler struct {
	fetcher jobs.Fetcher
	log     zerolog.Logger
}

// NewToolsHandler creates a new tools handler. fetcher may be nil, which disables sourceUri.
func NewToolsHandler(fetcher jobs.Fetcher, log zerolog.Logger) *ToolsHandler {
	return &ToolsHandler{
		fetcher: fetcher,
		log:     log,
	}
}

type fileRequest struct {
	Content   string               `json:"content"`
	SourceURI string               `json:"sourceUri"`
	HeaderRow int                  `json:"headerRow"`
	Rows      int                  `json:"rows"`
	Mapping   domain.ColumnMapping `json:"columnMapping"`
}

func (h *ToolsHandler) text(w http.ResponseWriter, r *http.Request, req *fileRequest) (string, bool) {
	if req.Content != "" {
		return req.Content, true
	}
	if req.SourceURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "content or sourceUri is required")
		return "", false
	}
	if h.fetcher == nil {
		middleware.WriteError(w, http.StatusBadRequest, "sourceUri is not supported")
		return "", false
	}
	data, err := h.fetcher.Fetch(r.Context(), req.SourceURI)
	if err != nil {
		h.log.Error().Err(err).Str("uri", req.SourceURI).Msg("Failed to fetch input")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to fetch input")
		return "", false
	}
	return string(data), true
}

// Fields handles GET /api/fields: the mappable target fields for processing and training files.
func (h *ToolsHandler) Fields(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"standard": mapping.StandardProcessingFields,
		"training": mapping.TrainingFields,
	})
}

// Preview handles POST /api/preview: headers and the first rows of a file.
func (h *ToolsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	text, ok := h.text(w, r, &req)
	if !ok {
		return
	}
	n := req.Rows
	if n <= 0 {
		n = DefaultPreviewRows
	}
	headers, rows, err := mapping.Preview(text, n, mapping.Options{HeaderRow: req.HeaderRow})
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"headers":    headers,
		"sampleRows": rows,
	})
}

// Quality handles POST /api/quality: parses a file with a mapping and reports data quality.
func (h *ToolsHandler) Quality(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Mapping) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "columnMapping is required")
		return
	}
	text, ok := h.text(w, r, &req)
	if !ok {
		return
	}

	res, err := mapping.ParseWithMapping(text, req.Mapping, mapping.StandardProcessingFields, mapping.Options{HeaderRow: req.HeaderRow})
	var cfgErr *mapping.ConfigError
	if errors.As(err, &cfgErr) {
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  cfgErr.Error(),
			"report": cfgErr.Report,
		})
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, quality.Analyze(res.Records, res.Report))
}
