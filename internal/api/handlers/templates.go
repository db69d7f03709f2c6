package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// TemplateRepository stores mapping and client configuration templates.
type TemplateRepository interface {
	SaveMappingTemplate(ctx context.Context, t domain.ColumnMappingTemplate) (domain.ColumnMappingTemplate, error)
	ListMappingTemplates(ctx context.Context) ([]domain.ColumnMappingTemplate, error)
	UseMappingTemplate(ctx context.Context, id string) (domain.ColumnMappingTemplate, error)
	DeleteMappingTemplate(ctx context.Context, id string) error

	SaveConfigTemplate(ctx context.Context, t domain.ClientConfigTemplate) (domain.ClientConfigTemplate, error)
	ListConfigTemplates(ctx context.Context) ([]domain.ClientConfigTemplate, error)
	UseConfigTemplate(ctx context.Context, id string) (domain.ClientConfigTemplate, error)
	DeleteConfigTemplate(ctx context.Context, id string) error
}

// TemplatesHandler handles /api/templates/mappings and /api/templates/configs.
type TemplatesHandler struct {
	repo TemplateRepository
	log  zerolog.Logger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(repo TemplateRepository, log zerolog.Logger) *TemplatesHandler {
	return &TemplatesHandler{
		repo: repo,
		log:  log,
	}
}

func (h *TemplatesHandler) fail(w http.ResponseWriter, err error, msg string) {
	status := storeStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	middleware.WriteError(w, status, err.Error())
}

// MappingTemplates handles GET and POST /api/templates/mappings
func (h *TemplatesHandler) MappingTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.repo.ListMappingTemplates(r.Context())
		if err != nil {
			h.fail(w, err, "Failed to list templates")
			return
		}
		if list == nil {
			list = []domain.ColumnMappingTemplate{}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"templates": list,
			"count":     len(list),
		})
	case http.MethodPost:
		var t domain.ColumnMappingTemplate
		if !decode(w, r, &t) {
			return
		}
		if strings.TrimSpace(t.Name) == "" || len(t.Mapping) == 0 {
			middleware.WriteError(w, http.StatusBadRequest, "name and mapping are required")
			return
		}
		saved, err := h.repo.SaveMappingTemplate(r.Context(), t)
		if err != nil {
			h.fail(w, err, "Failed to save template")
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, saved)
	default:
		middleware.MethodNotAllowed(w)
	}
}

// MappingTemplate handles DELETE /api/templates/mappings/{id} and POST /api/templates/mappings/{id}/use
func (h *TemplatesHandler) MappingTemplate(w http.ResponseWriter, r *http.Request, id string, use bool) {
	switch {
	case use && r.Method == http.MethodPost:
		t, err := h.repo.UseMappingTemplate(r.Context(), id)
		if err != nil {
			h.fail(w, err, "Failed to use template")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, t)
	case !use && r.Method == http.MethodDelete:
		if err := h.repo.DeleteMappingTemplate(r.Context(), id); err != nil {
			h.fail(w, err, "Failed to delete template")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		middleware.MethodNotAllowed(w)
	}
}

// ConfigTemplates handles GET and POST /api/templates/configs
func (h *TemplatesHandler) ConfigTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.repo.ListConfigTemplates(r.Context())
		if err != nil {
			h.fail(w, err, "Failed to list templates")
			return
		}
		if list == nil {
			list = []domain.ClientConfigTemplate{}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"templates": list,
			"count":     len(list),
		})
	case http.MethodPost:
		var t domain.ClientConfigTemplate
		if !decode(w, r, &t) {
			return
		}
		if strings.TrimSpace(t.Name) == "" || t.ClientID == "" || t.BookID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "name, clientId and bookId are required")
			return
		}
		saved, err := h.repo.SaveConfigTemplate(r.Context(), t)
		if err != nil {
			h.fail(w, err, "Failed to save template")
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, saved)
	default:
		middleware.MethodNotAllowed(w)
	}
}

// ConfigTemplate handles DELETE /api/templates/configs/{id} and POST /api/templates/configs/{id}/use
func (h *TemplatesHandler) ConfigTemplate(w http.ResponseWriter, r *http.Request, id string, use bool) {
	switch {
	case use && r.Method == http.MethodPost:
		t, err := h.repo.UseConfigTemplate(r.Context(), id)
		if err != nil {
			h.fail(w, err, "Failed to use template")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, t)
	case !use && r.Method == http.MethodDelete:
		if err := h.repo.DeleteConfigTemplate(r.Context(), id); err != nil {
			h.fail(w, err, "Failed to delete template")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		middleware.MethodNotAllowed(w)
	}
}
