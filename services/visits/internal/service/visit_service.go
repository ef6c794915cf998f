package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/fieldops/pkg/events"
	"github.com/diagnosis/fieldops/pkg/logger"
	"github.com/diagnosis/fieldops/services/visits/internal/domain"
	"github.com/diagnosis/fieldops/services/visits/internal/repository"
)

// CompletionNotifier is called once a check-out has committed. Its failures
// never affect the visit.
type CompletionNotifier interface {
	OnVisitCompleted(ctx context.Context, visit domain.Visit) error
}

type VisitService interface {
	CreatePlanned(ctx context.Context, req domain.CreateVisitRequest) (*domain.Visit, error)
	UpdatePlanned(ctx context.Context, id string, patch domain.VisitPatch) (*domain.Visit, error)
	CheckIn(ctx context.Context, id string, req domain.CheckInRequest) (*domain.Visit, error)
	CheckOut(ctx context.Context, id string, req domain.CheckOutRequest) (*domain.Visit, error)
	Cancel(ctx context.Context, id, actorID string) error
	MarkNoShow(ctx context.Context, id, actorID string) error
	GetByID(ctx context.Context, id string) (*domain.Visit, error)
	List(ctx context.Context, filter domain.VisitFilter, page domain.PageSpec) (*domain.Page[domain.Visit], error)
	MyVisitsToday(ctx context.Context, technicianID string, date time.Time) ([]domain.Visit, error)
	Events(ctx context.Context, id string) ([]domain.VisitEvent, error)
	AddNote(ctx context.Context, id string, req domain.AddNoteRequest) ([]domain.VisitNote, error)
	Notes(ctx context.Context, id string) ([]domain.VisitNote, error)
	Emails(ctx context.Context, id string) ([]domain.VisitEmail, error)
}

type Option func(*visitService)

// WithClock overrides time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *visitService) { s.now = now }
}

func WithMaxPageSize(n int) Option {
	return func(s *visitService) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// WithTodayLimit caps how many visits MyVisitsToday returns.
func WithTodayLimit(n int) Option {
	return func(s *visitService) {
		if n > 0 {
			s.todayLimit = n
		}
	}
}

// WithNotifyTimeout bounds the post-commit completion notification.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *visitService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

type visitService struct {
	visits      repository.VisitRepository
	emails      repository.EmailRepository
	notifier    CompletionNotifier
	eventBus    events.Publisher
	now         func() time.Time
	maxPageSize int
	todayLimit  int

	notifyTimeout time.Duration
}

func NewVisitService(
	visits repository.VisitRepository,
	emails repository.EmailRepository,
	notifier CompletionNotifier,
	eventBus events.Publisher,
	opts ...Option,
) VisitService {
	if eventBus == nil {
		eventBus = events.NopBus{}
	}
	s := &visitService{
		visits:      visits,
		emails:      emails,
		notifier:    notifier,
		eventBus:    eventBus,
		now:         time.Now,
		maxPageSize: domain.MaxPageSize,
		todayLimit:  1000,

		notifyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *visitService) clock() time.Time {
	return s.now().UTC()
}

func (s *visitService) CreatePlanned(ctx context.Context, req domain.CreateVisitRequest) (*domain.Visit, error) {
	now := s.clock()
	visit, err := domain.NewPlannedVisit(req.Params(), now)
	if err != nil {
		return nil, err
	}
	event := domain.NewVisitEvent(visit.ID, domain.EventVisitScheduled, "", now)

	err = s.visits.InTx(ctx, func(ctx context.Context, tx repository.VisitTx) error {
		if err := tx.Insert(ctx, visit); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &event)
	})
	if err != nil {
		return nil, storageErr("create visit", err)
	}

	logger.InfoContext(ctx, "Visit scheduled", "visit_id", visit.ID, "technician_id", visit.TechnicianID)
	s.publish(ctx, visit, event, nil)
	return visit, nil
}

func (s *visitService) UpdatePlanned(ctx context.Context, id string, patch domain.VisitPatch) (*domain.Visit, error) {
	var changes []string
	visit, event, err := s.transition(ctx, id, "", func(v *domain.Visit, ev *domain.VisitEvent) error {
		var err error
		if changes, err = v.ApplyPatch(patch); err != nil {
			return err
		}
		ev.Type = domain.EventVisitUpdated
		ev.Payload = strings.Join(changes, ",")
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Visit updated", "visit_id", visit.ID, "changes", changes)
	s.publish(ctx, visit, event, changes)
	return visit, nil
}

func (s *visitService) CheckIn(ctx context.Context, id string, req domain.CheckInRequest) (*domain.Visit, error) {
	visit, event, err := s.transition(ctx, id, req.ActorID, func(v *domain.Visit, ev *domain.VisitEvent) error {
		geo := domain.Geo{Lat: req.Lat, Lng: req.Lng}
		if err := geo.Validate(); err != nil {
			return err
		}
		when := ev.CreatedAt
		if req.When != nil {
			when = *req.When
		}
		if err := v.Start(when); err != nil {
			return err
		}
		ev.Type = domain.EventVisitStarted
		ev.GeoLat, ev.GeoLng = req.Lat, req.Lng
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Visit started", "visit_id", visit.ID, "check_in_at", visit.CheckInAt)
	s.publish(ctx, visit, event, nil)
	return visit, nil
}

func (s *visitService) CheckOut(ctx context.Context, id string, req domain.CheckOutRequest) (*domain.Visit, error) {
	summary := strings.TrimSpace(req.WorkSummary)
	visit, event, err := s.transition(ctx, id, req.ActorID, func(v *domain.Visit, ev *domain.VisitEvent) error {
		geo := domain.Geo{Lat: req.Lat, Lng: req.Lng}
		if err := geo.Validate(); err != nil {
			return err
		}
		if err := domain.ValidateWorkSummary(summary); err != nil {
			return err
		}
		when := ev.CreatedAt
		if req.When != nil {
			when = *req.When
		}
		if err := v.Complete(when); err != nil {
			return err
		}
		ev.Type = domain.EventVisitCompleted
		ev.GeoLat, ev.GeoLng = req.Lat, req.Lng
		ev.Payload = summary
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Visit completed", "visit_id", visit.ID, "check_out_at", visit.CheckOutAt)
	s.publish(ctx, visit, event, nil)
	s.notifyCompleted(context.WithoutCancel(ctx), *visit)
	return visit, nil
}

func (s *visitService) Cancel(ctx context.Context, id, actorID string) error {
	visit, event, err := s.transition(ctx, id, actorID, func(v *domain.Visit, ev *domain.VisitEvent) error {
		ev.Type = domain.EventVisitCancelled
		return v.Cancel()
	})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Visit cancelled", "visit_id", visit.ID)
	s.publish(ctx, visit, event, nil)
	return nil
}

func (s *visitService) MarkNoShow(ctx context.Context, id, actorID string) error {
	visit, event, err := s.transition(ctx, id, actorID, func(v *domain.Visit, ev *domain.VisitEvent) error {
		ev.Type = domain.EventVisitNoShow
		return v.MarkNoShow()
	})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Visit marked no-show", "visit_id", visit.ID)
	s.publish(ctx, visit, event, nil)
	return nil
}

// transition locks the visit, lets apply mutate it and fill in the event,
// then writes both in the same transaction.
func (s *visitService) transition(
	ctx context.Context,
	id, actorID string,
	apply func(v *domain.Visit, ev *domain.VisitEvent) error,
) (*domain.Visit, domain.VisitEvent, error) {
	var (
		result *domain.Visit
		event  domain.VisitEvent
	)
	err := s.visits.InTx(ctx, func(ctx context.Context, tx repository.VisitTx) error {
		visit, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if visit == nil {
			return domain.NewNotFound("visit", id)
		}

		now := s.clock()
		event = domain.NewVisitEvent(visit.ID, "", actorID, now)
		if err := apply(visit, &event); err != nil {
			return err
		}
		visit.Touch(now)

		if err := tx.Update(ctx, visit); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &event); err != nil {
			return err
		}
		result = visit
		return nil
	})
	if err != nil {
		return nil, event, storageErr("update visit", err)
	}
	return result, event, nil
}

func (s *visitService) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get visit", err)
	}
	if visit == nil {
		return nil, domain.NewNotFound("visit", id)
	}
	return visit, nil
}

func (s *visitService) List(ctx context.Context, filter domain.VisitFilter, page domain.PageSpec) (*domain.Page[domain.Visit], error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, domain.NewValidation("to", "must not be before from")
	}
	page = page.Normalize(s.maxPageSize)

	items, total, err := s.visits.List(ctx, filter, page)
	if err != nil {
		return nil, storageErr("list visits", err)
	}
	if items == nil {
		items = []domain.Visit{}
	}
	return &domain.Page[domain.Visit]{
		Items: items,
		Page:  page.Page,
		Size:  page.Size,
		Total: total,
	}, nil
}

func (s *visitService) MyVisitsToday(ctx context.Context, technicianID string, date time.Time) ([]domain.Visit, error) {
	technicianID = strings.TrimSpace(technicianID)
	if technicianID == "" {
		return nil, domain.NewValidation("technicianId", "is required")
	}
	if date.IsZero() {
		date = s.clock()
	}
	from, to := domain.DayWindow(date)

	items, _, err := s.visits.List(ctx,
		domain.VisitFilter{TechnicianID: technicianID, From: &from, To: &to},
		domain.PageSpec{Page: 0, Size: s.todayLimit},
	)
	if err != nil {
		return nil, storageErr("list today's visits", err)
	}
	if items == nil {
		items = []domain.Visit{}
	}
	return items, nil
}

func (s *visitService) Events(ctx context.Context, id string) ([]domain.VisitEvent, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	evs, err := s.visits.ListEvents(ctx, id)
	if err != nil {
		return nil, storageErr("list visit events", err)
	}
	return evs, nil
}

func (s *visitService) AddNote(ctx context.Context, id string, req domain.AddNoteRequest) ([]domain.VisitNote, error) {
	var note *domain.VisitNote
	err := s.visits.InTx(ctx, func(ctx context.Context, tx repository.VisitTx) error {
		visit, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if visit == nil {
			return domain.NewNotFound("visit", id)
		}
		note, err = domain.NewVisitNote(visit.ID, req.AuthorID, req.Visibility, req.Body, s.clock())
		if err != nil {
			return err
		}
		return tx.InsertNote(ctx, note)
	})
	if err != nil {
		return nil, storageErr("add visit note", err)
	}

	logger.InfoContext(ctx, "Visit note added", "visit_id", id, "note_id", note.ID, "visibility", note.Visibility)
	return s.Notes(ctx, id)
}

func (s *visitService) Notes(ctx context.Context, id string) ([]domain.VisitNote, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	notes, err := s.visits.ListNotes(ctx, id)
	if err != nil {
		return nil, storageErr("list visit notes", err)
	}
	return notes, nil
}

func (s *visitService) Emails(ctx context.Context, id string) ([]domain.VisitEmail, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if s.emails == nil {
		return []domain.VisitEmail{}, nil
	}
	emails, err := s.emails.ListEmails(ctx, id)
	if err != nil {
		return nil, storageErr("list visit emails", err)
	}
	return emails, nil
}

// notifyCompleted runs the completion side effect after commit. Errors and
// panics are logged and dropped. ctx must already be detached from the
// request so a disconnect cannot skip the email record.
func (s *visitService) notifyCompleted(ctx context.Context, visit domain.Visit) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Completion notifier panicked", "visit_id", visit.ID, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.notifier.OnVisitCompleted(ctx, visit); err != nil {
		logger.WarnContext(ctx, "Completion notification failed", "visit_id", visit.ID, "error", err)
	}
}

var eventSubjects = map[domain.EventType]string{
	domain.EventVisitScheduled: events.VisitScheduled,
	domain.EventVisitUpdated:   events.VisitUpdated,
	domain.EventVisitStarted:   events.VisitStarted,
	domain.EventVisitCompleted: events.VisitCompleted,
	domain.EventVisitCancelled: events.VisitCancelled,
	domain.EventVisitNoShow:    events.VisitNoShow,
}

func (s *visitService) publish(ctx context.Context, visit *domain.Visit, ev domain.VisitEvent, changes []string) {
	subject, ok := eventSubjects[ev.Type]
	if !ok {
		return
	}
	msg := events.VisitEvent{
		EventID:      ev.ID,
		Type:         string(ev.Type),
		VisitID:      visit.ID,
		CustomerID:   visit.CustomerID,
		SiteID:       visit.SiteID,
		TechnicianID: visit.TechnicianID,
		State:        string(visit.State),
		ActorID:      ev.ActorID,
		GeoLat:       ev.GeoLat,
		GeoLng:       ev.GeoLng,
		Payload:      ev.Payload,
		Changes:      changes,
		OccurredAt:   ev.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, subject, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to publish visit event", "error", err, "visit_id", visit.ID, "subject", subject)
	}
}

// storageErr passes domain errors through and wraps everything else.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidStateTransition) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
