package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/fieldops/internal/http/response"
	"github.com/diagnosis/fieldops/pkg/logger"
	"github.com/diagnosis/fieldops/services/visits/internal/domain"
	"github.com/diagnosis/fieldops/services/visits/internal/service"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	visits service.VisitService
	now    func() time.Time
}

func New(visits service.VisitService) *Handlers {
	return &Handlers{visits: visits, now: time.Now}
}

// Routes mounts the visits API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/visits", func(r chi.Router) {
		r.Post("/", h.CreateVisit)
		r.Get("/", h.ListVisits)
		r.Get("/me/today", h.MyVisitsToday)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetVisit)
			r.Patch("/", h.UpdateVisit)
			r.Post("/check-in", h.CheckIn)
			r.Post("/check-out", h.CheckOut)
			r.Post("/cancel", h.Cancel)
			r.Post("/no-show", h.NoShow)
			r.Get("/events", h.ListEvents)
			r.Get("/notes", h.ListNotes)
			r.Post("/notes", h.AddNote)
			r.Get("/emails", h.ListEmails)
		})
	})
}

// Helper functions for common response patterns
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	response.WriteJSON(w, statusCode, data)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidation("body", "request body is empty")
		}
		return domain.NewValidation("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// writeDomainError maps service errors onto HTTP statuses. Anything that is
// not a domain error is logged and reported as a bare 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		response.InvalidTransition(w, err.Error())
	default:
		logger.ErrorContext(r.Context(), "Visit request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "internal error")
	}
}

func visitID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// actorHeader carries the authenticated subject set by the gateway.
const actorHeader = "X-Actor-ID"

// actorID prefers the id named in the request and falls back to the
// gateway's authenticated subject.
func actorID(r *http.Request, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

// Helper to parse pagination parameters
func parsePagination(r *http.Request) (domain.PageSpec, error) {
	var page domain.PageSpec
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, domain.NewValidation("page", "must be a non-negative integer")
		}
		page.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return page, domain.NewValidation("size", "must be a positive integer")
		}
		page.Size = n
	}
	return page, nil
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, domain.NewValidation(name, "must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

// parseDate accepts a calendar date or a full timestamp.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
