package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/exchange"
)

// Uploader writes an object to a bucket and returns its URI.
type Uploader interface {
	Upload(ctx context.Context, bucket, object string, r io.Reader) (string, error)
}

// ExchangeHandler handles export and import of the whole dataset.
type ExchangeHandler struct {
	repo     exchange.Repository
	rules    exchange.RuleStore
	uploader Uploader
	bucket   string
	log      zerolog.Logger
}

// NewExchangeHandler creates a new exchange handler. Without a bucket, exports cannot be uploaded.
func NewExchangeHandler(repo exchange.Repository, rules exchange.RuleStore, uploader Uploader, bucket string, log zerolog.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		repo:     repo,
		rules:    rules,
		uploader: uploader,
		bucket:   bucket,
		log:      log,
	}
}

func (h *ExchangeHandler) export(ctx context.Context) ([]byte, error) {
	c, err := exchange.Export(ctx, h.repo, h.rules)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := exchange.Write(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Export handles GET /api/export
func (h *ExchangeHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.export(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to export data")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export data")
		return
	}
	name := fmt.Sprintf("categorizer-export-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// UploadExport handles POST /api/export/upload: writes the export to the configured bucket.
func (h *ExchangeHandler) UploadExport(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil || h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No export bucket configured")
		return
	}
	ctx := r.Context()
	data, err := h.export(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to export data")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export data")
		return
	}
	object := fmt.Sprintf("exports/%s.json", time.Now().UTC().Format("2006/01/02/150405"))
	uri, err := h.uploader.Upload(ctx, h.bucket, object, bytes.NewReader(data))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upload export")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to upload export")
		return
	}
	h.log.Info().Str("uri", uri).Int("bytes", len(data)).Msg("Export uploaded")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

// Import handles POST /api/import. Item errors are reported in the result, not as a failed request.
func (h *ExchangeHandler) Import(w http.ResponseWriter, r *http.Request) {
	c, err := exchange.Read(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := exchange.Import(r.Context(), h.repo, h.rules, c)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to import data")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to import data")
		return
	}
	h.log.Info().
		Int("clients", res.ClientsCreated).
		Int("books", res.BooksCreated).
		Int("transactions", res.TransactionsImported).
		Int("errors", len(res.Errors)).
		Msg("Import completed")
	middleware.WriteJSON(w, http.StatusOK, res)
}
