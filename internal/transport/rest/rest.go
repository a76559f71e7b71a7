// Package rest implements the REST router: every endpoint in
// internal/contracts mapped to a handler that deserializes the request
// DTO, calls one Handlers method, and serializes the response DTO, with
// errors mapped to HTTP status codes via core.Kind.HTTPStatus. Built on
// go-chi/chi, since this
// service has no gRPC service definition to proxy.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/docsearch/docsearch/internal/contracts"
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/transport"
)

// Router builds the chi-based REST router over a shared transport.Handlers.
type Router struct {
	h      *transport.Handlers
	logger *slog.Logger
}

// New builds a Router over h.
func New(h *transport.Handlers, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{h: h, logger: logger}
}

// Handler assembles the full chi.Mux: CORS for local origins, request
// logging, and one route per internal/contracts path constant.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(rt.logging)
	r.Use(corsMiddleware)

	r.Post(contracts.PathSearch, rt.handleSearch)
	r.Get(contracts.PathStatus, rt.handleStatus)
	r.Get(contracts.PathHealth, rt.handleHealth)
	r.Get(contracts.PathDocs, rt.handleListDocs)
	r.Get(contracts.PathDocByID, rt.handleGetDoc)
	r.Delete(contracts.PathDocByID, rt.handleDeleteDoc)
	r.Post(contracts.PathReindex, rt.handleReindex)
	r.Get(contracts.PathCollections, rt.handleListCollections)
	r.Post(contracts.PathCollections, rt.handleCreateCollection)
	r.Get(contracts.PathCollectionByName, rt.handleGetCollection)

	return r
}

func (rt *Router) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
		rt.logger.Debug("rest request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// corsMiddleware enables CORS for local origins: an Origin whose host is
// localhost, 127.0.0.1 or ::1 is echoed back; other origins get no CORS
// headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		if origin := r.Header.Get("Origin"); origin != "" {
			if u, err := url.Parse(origin); err == nil {
				switch u.Hostname() {
				case "localhost", "127.0.0.1", "::1":
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				}
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to an HTTP status via core.Kind.HTTPStatus and the
// shared contracts.ErrorResponse machine-readable body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := contracts.ErrorResponse{Error: contracts.ErrorBody{Category: string(core.KindInternal), Message: err.Error()}}

	if ce, ok := core.AsError(err); ok {
		status = ce.Kind.HTTPStatus()
		body.Error = contracts.ErrorBody{
			Category:     string(ce.Kind),
			Message:      ce.Message,
			Field:        ce.Field,
			Resource:     ce.Resource,
			RetryAfterMS: ce.RetryAfterMS,
		}
		if ce.Kind == core.KindRateLimited && ce.RetryAfterMS > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(ce.RetryAfterMS/1000, 10))
		}
	}
	writeJSON(w, status, body)
}

func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req contracts.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.Validation("body", "malformed JSON body"))
		return
	}
	resp, err := rt.h.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.RequestID == "" {
		resp.RequestID = uuid.NewString()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.h.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Health reporting itself must not fail the HTTP call: an unhealthy
	// dependency shows up in the body, not as a non-200 status.
	resp, _ := rt.h.HealthCheck(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleListDocs(w http.ResponseWriter, r *http.Request) {
	page := parseIntQuery(r, "page", 1)
	pageSize := parseIntQuery(r, "page_size", 50)
	resp, err := rt.h.DocumentList(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := rt.h.DocumentGet(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := rt.h.DocumentPurge(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleReindex(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.h.Reindex(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleListCollections(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.h.CollectionList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.Validation("body", "malformed JSON body"))
		return
	}
	if err := rt.h.CreateCollection(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := rt.h.CollectionStats(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (rt *Router) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp, err := rt.h.CollectionStats(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
