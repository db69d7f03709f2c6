// Package api routes HTTP requests to the handlers.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/api/handlers"
	"github.com/dvloznov/ledger-categorizer/internal/api/middleware"
)

// Handlers groups every handler the router serves.
type Handlers struct {
	Jobs      *handlers.JobsHandler
	Entities  *handlers.EntitiesHandler
	Rules     *handlers.RulesHandler
	Tools     *handlers.ToolsHandler
	Templates *handlers.TemplatesHandler
	Exchange  *handlers.ExchangeHandler
	Review    *handlers.ReviewHandler
}

// only allows one method on a route.
func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.MethodNotAllowed(w)
			return
		}
		fn(w, r)
	}
}

// segments splits the path below prefix, e.g. "/api/jobs/1/proceed" -> ["1", "proceed"].
func segments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// NewRouter registers every route on a new mux.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Jobs.ListJobs(w, r)
		case http.MethodPost:
			h.Jobs.CreateJob(w, r)
		default:
			middleware.MethodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/jobs/")
		switch {
		case len(seg) == 1 && r.Method == http.MethodGet:
			h.Jobs.GetJob(w, r, seg[0])
		case len(seg) == 2 && seg[1] == "summary" && r.Method == http.MethodGet:
			h.Jobs.Summary(w, r, seg[0])
		case len(seg) == 2 && seg[1] == "mapping" && r.Method == http.MethodPost:
			h.Jobs.SubmitMapping(w, r, seg[0])
		case len(seg) == 2 && seg[1] == "proceed" && r.Method == http.MethodPost:
			h.Jobs.Proceed(w, r, seg[0])
		case len(seg) == 4 && seg[1] == "transactions" && seg[3] == "override" && r.Method == http.MethodPost:
			h.Jobs.Override(w, r, seg[0], seg[2])
		case len(seg) == 0:
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Entity endpoints
	mux.HandleFunc("/api/clients", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Entities.ListClients(w, r)
		case http.MethodPost:
			h.Entities.CreateClient(w, r)
		default:
			middleware.MethodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/clients/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/clients/")
		if len(seg) != 1 {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		only(http.MethodDelete, func(w http.ResponseWriter, r *http.Request) {
			h.Entities.DeleteClient(w, r, seg[0])
		})(w, r)
	})

	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Entities.ListBooks(w, r)
		case http.MethodPost:
			h.Entities.CreateBook(w, r)
		default:
			middleware.MethodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/books/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/books/")
		switch {
		case len(seg) == 1 && r.Method == http.MethodDelete:
			h.Entities.DeleteBook(w, r, seg[0])
		case len(seg) == 2 && seg[1] == "mapping" && r.Method == http.MethodGet:
			h.Entities.GetMapping(w, r, seg[0])
		case len(seg) == 2 && seg[1] == "mapping" && r.Method == http.MethodPut:
			h.Entities.SaveMapping(w, r, seg[0])
		case len(seg) == 2 && seg[1] == "training":
			h.Entities.Training(w, r, seg[0])
		case len(seg) == 1 || len(seg) == 2:
			middleware.MethodNotAllowed(w)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	mux.HandleFunc("/api/industries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Entities.ListIndustries(w, r)
		case http.MethodPost:
			h.Entities.CreateIndustry(w, r)
		default:
			middleware.MethodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/industries/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/industries/")
		if len(seg) != 1 {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		only(http.MethodDelete, func(w http.ResponseWriter, r *http.Request) {
			h.Entities.DeleteIndustry(w, r, seg[0])
		})(w, r)
	})

	// Rules and catalog endpoints
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Rules.ListRules(w, r)
		case http.MethodDelete:
			h.Rules.ResetAll(w, r)
		default:
			middleware.MethodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/rules/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/rules/")
		if len(seg) != 1 {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		h.Rules.Rule(w, r, seg[0])
	})
	mux.HandleFunc("/api/catalog", only(http.MethodGet, h.Rules.Catalog))

	// File helpers
	mux.HandleFunc("/api/fields", only(http.MethodGet, h.Tools.Fields))
	mux.HandleFunc("/api/preview", only(http.MethodPost, h.Tools.Preview))
	mux.HandleFunc("/api/quality", only(http.MethodPost, h.Tools.Quality))

	// Templates
	mux.HandleFunc("/api/templates/mappings", h.Templates.MappingTemplates)
	mux.HandleFunc("/api/templates/mappings/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/templates/mappings/")
		switch {
		case len(seg) == 1:
			h.Templates.MappingTemplate(w, r, seg[0], false)
		case len(seg) == 2 && seg[1] == "use":
			h.Templates.MappingTemplate(w, r, seg[0], true)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})
	mux.HandleFunc("/api/templates/configs", h.Templates.ConfigTemplates)
	mux.HandleFunc("/api/templates/configs/", func(w http.ResponseWriter, r *http.Request) {
		seg := segments(r.URL.Path, "/api/templates/configs/")
		switch {
		case len(seg) == 1:
			h.Templates.ConfigTemplate(w, r, seg[0], false)
		case len(seg) == 2 && seg[1] == "use":
			h.Templates.ConfigTemplate(w, r, seg[0], true)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Export and import
	mux.HandleFunc("/api/export", only(http.MethodGet, h.Exchange.Export))
	mux.HandleFunc("/api/export/upload", only(http.MethodPost, h.Exchange.UploadExport))
	mux.HandleFunc("/api/import", only(http.MethodPost, h.Exchange.Import))

	// Review queue
	mux.HandleFunc("/api/review/sync", only(http.MethodPost, h.Review.Sync))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
