package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/store/boltdb"
)

// MaxBodyBytes bounds request bodies; uploaded files travel inline as job content.
const MaxBodyBytes = 32 << 20

// decode reads a JSON body into v and writes a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// storeStatus maps store errors to HTTP statuses.
func storeStatus(err error) int {
	switch {
	case errors.Is(err, boltdb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, boltdb.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// EntityRepository is the client, book and industry registry with per-book mappings and training data.
type EntityRepository interface {
	CreateClient(ctx context.Context, name string) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	CreateBook(ctx context.Context, clientID, name string) (domain.Book, error)
	GetBook(ctx context.Context, id string) (domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	BooksByClient(ctx context.Context, clientID string) ([]domain.Book, error)
	DeleteBook(ctx context.Context, id string) error

	CreateIndustry(ctx context.Context, name string) (domain.Industry, error)
	ListIndustries(ctx context.Context) ([]domain.Industry, error)
	DeleteIndustry(ctx context.Context, id string) error

	GetColumnMapping(ctx context.Context, clientID, bookID string) (domain.ColumnMapping, error)
	SaveColumnMapping(ctx context.Context, clientID, bookID string, m domain.ColumnMapping) error

	CountTrainingTransactions(ctx context.Context, clientID, bookID string) (int, error)
	ClearTrainingTransactions(ctx context.Context, clientID, bookID string) error
}

// TrainingClearer removes mirrored training data.
type TrainingClearer interface {
	ClearTrainingTransactions(ctx context.Context, clientID, bookID string) error
}

// EntitiesHandler handles clients, books and industries.
type EntitiesHandler struct {
	repo   EntityRepository
	mirror TrainingClearer
	log    zerolog.Logger
}

// NewEntitiesHandler creates a new entities handler. mirror may be nil.
func NewEntitiesHandler(repo EntityRepository, mirror TrainingClearer, log zerolog.Logger) *EntitiesHandler {
	return &EntitiesHandler{
		repo:   repo,
		mirror: mirror,
		log:    log,
	}
}

type nameRequest struct {
	Name     string `json:"name"`
	ClientID string `json:"clientId"`
}

func (h *EntitiesHandler) fail(w http.ResponseWriter, err error, msg string) {
	status := storeStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	middleware.WriteError(w, status, err.Error())
}

// ListClients handles GET /api/clients
func (h *EntitiesHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.repo.ListClients(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to list clients")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	})
}

// CreateClient handles POST /api/clients
func (h *EntitiesHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	client, err := h.repo.CreateClient(r.Context(), req.Name)
	if err != nil {
		h.fail(w, err, "Failed to create client")
		return
	}
	h.log.Info().Str("client_id", client.ID).Str("name", client.Name).Msg("Client created")
	middleware.WriteJSON(w, http.StatusCreated, client)
}

// DeleteClient handles DELETE /api/clients/{id}
func (h *EntitiesHandler) DeleteClient(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.repo.DeleteClient(r.Context(), id); err != nil {
		h.fail(w, err, "Failed to delete client")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBooks handles GET /api/books, optionally filtered by client_id.
func (h *EntitiesHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	var (
		books []domain.Book
		err   error
	)
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		books, err = h.repo.BooksByClient(r.Context(), clientID)
	} else {
		books, err = h.repo.ListBooks(r.Context())
	}
	if err != nil {
		h.fail(w, err, "Failed to list books")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"books": books,
		"count": len(books),
	})
}

// CreateBook handles POST /api/books
func (h *EntitiesHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.ClientID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name and clientId are required")
		return
	}
	book, err := h.repo.CreateBook(r.Context(), req.ClientID, req.Name)
	if err != nil {
		h.fail(w, err, "Failed to create book")
		return
	}
	h.log.Info().Str("book_id", book.ID).Str("client_id", book.ClientID).Msg("Book created")
	middleware.WriteJSON(w, http.StatusCreated, book)
}

// DeleteBook handles DELETE /api/books/{id}
func (h *EntitiesHandler) DeleteBook(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.repo.DeleteBook(r.Context(), id); err != nil {
		h.fail(w, err, "Failed to delete book")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMapping handles GET /api/books/{id}/mapping
func (h *EntitiesHandler) GetMapping(w http.ResponseWriter, r *http.Request, bookID string) {
	ctx := r.Context()
	book, err := h.repo.GetBook(ctx, bookID)
	if err != nil {
		h.fail(w, err, "Failed to get book")
		return
	}
	m, err := h.repo.GetColumnMapping(ctx, book.ClientID, book.ID)
	if err != nil {
		h.fail(w, err, "Failed to get mapping")
		return
	}
	if m == nil {
		m = domain.ColumnMapping{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"columnMapping": m})
}

// SaveMapping handles PUT /api/books/{id}/mapping
func (h *EntitiesHandler) SaveMapping(w http.ResponseWriter, r *http.Request, bookID string) {
	var req struct {
		Mapping domain.ColumnMapping `json:"columnMapping"`
	}
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	book, err := h.repo.GetBook(ctx, bookID)
	if err != nil {
		h.fail(w, err, "Failed to get book")
		return
	}
	if err := h.repo.SaveColumnMapping(ctx, book.ClientID, book.ID, req.Mapping); err != nil {
		h.fail(w, err, "Failed to save mapping")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"columnMapping": req.Mapping})
}

// Training handles GET and DELETE /api/books/{id}/training
func (h *EntitiesHandler) Training(w http.ResponseWriter, r *http.Request, bookID string) {
	ctx := r.Context()
	book, err := h.repo.GetBook(ctx, bookID)
	if err != nil {
		h.fail(w, err, "Failed to get book")
		return
	}

	switch r.Method {
	case http.MethodGet:
		n, err := h.repo.CountTrainingTransactions(ctx, book.ClientID, book.ID)
		if err != nil {
			h.fail(w, err, "Failed to count training data")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"count": n})
	case http.MethodDelete:
		if err := h.repo.ClearTrainingTransactions(ctx, book.ClientID, book.ID); err != nil {
			h.fail(w, err, "Failed to clear training data")
			return
		}
		if h.mirror != nil {
			if err := h.mirror.ClearTrainingTransactions(ctx, book.ClientID, book.ID); err != nil {
				h.log.Error().Err(err).Str("book_id", book.ID).Msg("Failed to clear mirrored training data")
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		middleware.MethodNotAllowed(w)
	}
}

// ListIndustries handles GET /api/industries
func (h *EntitiesHandler) ListIndustries(w http.ResponseWriter, r *http.Request) {
	industries, err := h.repo.ListIndustries(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to list industries")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"industries": industries,
		"count":      len(industries),
	})
}

// CreateIndustry handles POST /api/industries
func (h *EntitiesHandler) CreateIndustry(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	industry, err := h.repo.CreateIndustry(r.Context(), req.Name)
	if err != nil {
		h.fail(w, err, "Failed to create industry")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, industry)
}

// DeleteIndustry handles DELETE /api/industries/{id}
func (h *EntitiesHandler) DeleteIndustry(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.repo.DeleteIndustry(r.Context(), id); err != nil {
		h.fail(w, err, "Failed to delete industry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
