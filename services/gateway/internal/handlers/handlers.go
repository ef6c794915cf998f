package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/fieldops/internal/http/response"
	"github.com/diagnosis/fieldops/pkg/auth"
	"github.com/diagnosis/fieldops/pkg/logger"
	"github.com/diagnosis/fieldops/services/gateway/internal/proxy"
)

const apiPrefix = "/v1"

type Handlers struct {
	visitsProxy *proxy.ServiceProxy
	jwtSecret   string
}

func New(visitsProxy *proxy.ServiceProxy, jwtSecret string) *Handlers {
	return &Handlers{visitsProxy: visitsProxy, jwtSecret: jwtSecret}
}

// Routes mounts the public /v1 API. Reads are open to every authenticated
// role; planning commands need a dispatcher; field commands need a technician.
func (h *Handlers) Routes(r chi.Router) {
	r.Route(apiPrefix+"/visits", func(r chi.Router) {
		r.Use(h.RequireJWT())

		r.Get("/", h.ProxyVisits)
		r.Get("/me/today", h.MyVisitsToday)
		r.Get("/{id}", h.ProxyVisits)
		r.Get("/{id}/events", h.ProxyVisits)
		r.Get("/{id}/notes", h.ProxyVisits)
		r.Get("/{id}/emails", h.ProxyVisits)
		r.Post("/{id}/notes", h.ProxyVisits)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireRole(auth.RoleDispatcher))
			r.Post("/", h.ProxyVisits)
			r.Patch("/{id}", h.ProxyVisits)
			r.Post("/{id}/cancel", h.ProxyVisits)
			r.Post("/{id}/no-show", h.ProxyVisits)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.RequireRole(auth.RoleTechnician, auth.RoleDispatcher))
			r.Post("/{id}/check-in", h.ProxyVisits)
			r.Post("/{id}/check-out", h.ProxyVisits)
		})
	})
}

// ProxyVisits forwards the request to the visits service with the /v1 prefix
// removed.
func (h *Handlers) ProxyVisits(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.visitsProxy, upstreamPath(r))
}

// MyVisitsToday pins technicianId to the caller for technician tokens, so a
// technician only ever sees their own day.
func (h *Handlers) MyVisitsToday(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims != nil && claims.Role == auth.RoleTechnician {
		q := r.URL.Query()
		q.Set("technicianId", claims.Subject)
		r.URL.RawQuery = q.Encode()
	}
	h.proxyRequest(w, r, h.visitsProxy, upstreamPath(r))
}

func upstreamPath(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	return path
}

// Helper to copy request body and headers
func (h *Handlers) proxyRequest(w http.ResponseWriter, r *http.Request, serviceProxy *proxy.ServiceProxy, path string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "Failed to read request body")
		return
	}
	defer r.Body.Close()
	if len(body) == 0 {
		body = nil
	}

	headers := make(http.Header)
	for key, values := range r.Header {
		if shouldCopyHeader(key) {
			headers[key] = values
		}
	}
	if claims := claimsFrom(r); claims != nil {
		headers.Set("X-Actor-ID", claims.Subject)
		headers.Set("X-Actor-Role", claims.Role)
	}

	resp, err := serviceProxy.ProxyRequest(r.Context(), r.Method, path, body, headers)
	if err != nil {
		logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "path", path)
		response.WriteError(w, http.StatusBadGateway, "Service unavailable", response.CodeUpstreamUnavailable)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if !shouldCopyHeader(key) {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
	}
}

func shouldCopyHeader(key string) bool {
	switch strings.ToLower(key) {
	case "host", "connection", "upgrade", "proxy-connection", "proxy-authenticate",
		"proxy-authorization", "te", "trailers", "transfer-encoding", "keep-alive",
		"authorization", "content-length":
		return false
	}
	return true
}
