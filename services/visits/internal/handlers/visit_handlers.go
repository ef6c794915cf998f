package handlers

import (
	"net/http"
	"strings"

	"github.com/diagnosis/fieldops/pkg/logger"
	"github.com/diagnosis/fieldops/services/visits/internal/domain"
)

func (h *Handlers) CreateVisit(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateVisitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	visit, err := h.visits.CreatePlanned(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handlers) GetVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.visits.GetByID(r.Context(), visitID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handlers) UpdateVisit(w http.ResponseWriter, r *http.Request) {
	var patch domain.VisitPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeDomainError(w, r, err)
		return
	}

	visit, err := h.visits.UpdatePlanned(r.Context(), visitID(r), patch)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	req.ActorID = actorID(r, req.ActorID)
	ctx := logger.WithActorID(r.Context(), req.ActorID)

	visit, err := h.visits.CheckIn(ctx, visitID(r), req)
	if err != nil {
		writeDomainError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handlers) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckOutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	req.ActorID = actorID(r, req.ActorID)
	ctx := logger.WithActorID(r.Context(), req.ActorID)

	visit, err := h.visits.CheckOut(ctx, visitID(r), req)
	if err != nil {
		writeDomainError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r, r.URL.Query().Get("actorId"))
	ctx := logger.WithActorID(r.Context(), actor)

	if err := h.visits.Cancel(ctx, visitID(r), actor); err != nil {
		writeDomainError(w, r.WithContext(ctx), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) NoShow(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r, r.URL.Query().Get("actorId"))
	ctx := logger.WithActorID(r.Context(), actor)

	if err := h.visits.MarkNoShow(ctx, visitID(r), actor); err != nil {
		writeDomainError(w, r.WithContext(ctx), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.VisitFilter{
		CustomerID:   strings.TrimSpace(q.Get("customerId")),
		TechnicianID: strings.TrimSpace(q.Get("technicianId")),
	}
	if v := q.Get("state"); v != "" {
		state, ok := domain.ParseVisitState(v)
		if !ok {
			writeDomainError(w, r, domain.NewValidation("state", "unknown value "+v))
			return
		}
		filter.State = &state
	}

	var err error
	if filter.From, err = parseTimeParam(r, "from"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if filter.To, err = parseTimeParam(r, "to"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	page, err := parsePagination(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.visits.List(r.Context(), filter, page)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) MyVisitsToday(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	technicianID := strings.TrimSpace(q.Get("technicianId"))
	ctx := logger.WithActorID(r.Context(), technicianID)

	date := h.now().UTC()
	if v := strings.TrimSpace(q.Get("dateIso")); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			writeDomainError(w, r, domain.NewValidation("dateIso", "must be YYYY-MM-DD or an RFC 3339 timestamp"))
			return
		}
		date = parsed
	}

	visits, err := h.visits.MyVisitsToday(ctx, technicianID, date)
	if err != nil {
		writeDomainError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, visits)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := h.visits.Events(r.Context(), visitID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *Handlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.visits.Notes(r.Context(), visitID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handlers) AddNote(w http.ResponseWriter, r *http.Request) {
	var req domain.AddNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	req.AuthorID = actorID(r, req.AuthorID)
	ctx := logger.WithActorID(r.Context(), req.AuthorID)

	notes, err := h.visits.AddNote(ctx, visitID(r), req)
	if err != nil {
		writeDomainError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := h.visits.Emails(r.Context(), visitID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emails)
}
