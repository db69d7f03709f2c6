package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

// RuleStore reads and edits the rule documents.
type RuleStore interface {
	Resolve(ctx context.Context) (*rules.RuleSet, error)
	SaveCustom(ctx context.Context, t rules.RuleType, data []byte) error
	Reset(ctx context.Context, t rules.RuleType) error
	ResetAll(ctx context.Context) error
}

// RulesHandler handles rule documents and the category catalog.
type RulesHandler struct {
	rules   RuleStore
	catalog *cache.Cache
	log     zerolog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(rs RuleStore, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{
		rules:   rs,
		catalog: cache.New(10*time.Minute, 20*time.Minute),
		log:     log,
	}
}

type catalogEntry struct {
	rules   *rules.RuleSet
	entries []normalizer.CatalogEntry
}

type ruleStatus struct {
	Type     rules.RuleType `json:"type"`
	IsCustom bool           `json:"isCustom"`
}

// ListRules handles GET /api/rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rs, err := h.rules.Resolve(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve rules")
		return
	}
	out := make([]ruleStatus, 0, len(rules.RuleTypes))
	for _, t := range rules.RuleTypes {
		out = append(out, ruleStatus{Type: t, IsCustom: rs.Custom[t]})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

// ResetAll handles DELETE /api/rules
func (h *RulesHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.ResetAll(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reset rules")
		return
	}
	h.log.Info().Msg("All rule documents reset to defaults")
	w.WriteHeader(http.StatusNoContent)
}

// Rule handles GET, PUT and DELETE /api/rules/{type}. GET returns the effective document,
// as YAML with ?format=yaml.
func (h *RulesHandler) Rule(w http.ResponseWriter, r *http.Request, name string) {
	t, err := rules.ParseRuleType(name)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		rs, err := h.rules.Resolve(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to resolve rules")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve rules")
			return
		}
		doc := rs.Document(t)
		w.Header().Set("X-Rule-Custom", fmt.Sprint(rs.Custom[t]))
		if r.URL.Query().Get("format") == "yaml" {
			data, err := rules.EncodeYAML(doc)
			if err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, "Failed to encode rules")
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
		data, err := rules.EncodeJSON(doc)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to encode rules")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	case http.MethodPut:
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := h.rules.SaveCustom(ctx, t, data); err != nil {
			h.log.Warn().Err(err).Str("rule_type", string(t)).Msg("Rejected rule document")
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Info().Str("rule_type", string(t)).Msg("Custom rule document saved")
		middleware.WriteJSON(w, http.StatusOK, ruleStatus{Type: t, IsCustom: true})

	case http.MethodDelete:
		if err := h.rules.Reset(ctx, t); err != nil {
			h.log.Error().Err(err).Str("rule_type", string(t)).Msg("Failed to reset rule document")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to reset rule document")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		middleware.MethodNotAllowed(w)
	}
}

// Catalog handles GET /api/catalog: every specific category with its broad category.
// Entries are cached per resolved rule snapshot, so edits show up once the snapshot changes.
func (h *RulesHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	rs, err := h.rules.Resolve(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve rules")
		return
	}

	// The entry holds rs, so its address cannot be reused while the key lives.
	key := fmt.Sprintf("%p", rs)
	var list []normalizer.CatalogEntry
	if v, ok := h.catalog.Get(key); ok {
		list = v.(catalogEntry).entries
	} else {
		list = normalizer.ListAllSpecificNames(rs)
		h.catalog.Set(key, catalogEntry{rules: rs, entries: list}, cache.DefaultExpiration)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": list,
		"count":      len(list),
	})
}
