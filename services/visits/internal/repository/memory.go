package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/diagnosis/fieldops/services/visits/internal/domain"
)

// MemoryStore keeps visits in process. It serializes commands per visit the
// same way the Postgres row lock does, so it is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	visits     map[string]domain.Visit
	events     map[string][]domain.VisitEvent
	notes      map[string][]domain.VisitNote
	emails     map[string]domain.VisitEmail
	emailOrder []string

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visits: make(map[string]domain.Visit),
		events: make(map[string][]domain.VisitEvent),
		notes:  make(map[string][]domain.VisitNote),
		emails: make(map[string]domain.VisitEmail),
		locks:  make(map[string]chan struct{}),
	}
}

func (s *MemoryStore) lockFor(id string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx VisitTx) error) error {
	tx := &memoryTx{
		store:  s,
		held:   make(map[string]chan struct{}),
		staged: make(map[string]domain.Visit),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visits[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryStore) List(_ context.Context, filter domain.VisitFilter, page domain.PageSpec) ([]domain.Visit, int64, error) {
	s.mu.RLock()
	matched := make([]domain.Visit, 0)
	for _, v := range s.visits {
		if filter.Matches(&v) {
			matched = append(matched, v)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.ScheduledStartAt.Equal(b.ScheduledStartAt) {
			return a.ScheduledStartAt.Before(b.ScheduledStartAt)
		}
		return a.ID < b.ID
	})

	total := int64(len(matched))
	start := page.Offset()
	if start >= len(matched) {
		return []domain.Visit{}, total, nil
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, visitID string) ([]domain.VisitEvent, error) {
	s.mu.RLock()
	events := append([]domain.VisitEvent{}, s.events[visitID]...)
	s.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (s *MemoryStore) ListNotes(_ context.Context, visitID string) ([]domain.VisitNote, error) {
	s.mu.RLock()
	notes := append([]domain.VisitNote{}, s.notes[visitID]...)
	s.mu.RUnlock()

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *MemoryStore) CreateEmail(_ context.Context, e *domain.VisitEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[e.ID]; !exists {
		s.emailOrder = append(s.emailOrder, e.ID)
	}
	s.emails[e.ID] = *e
	return nil
}

func (s *MemoryStore) UpdateEmailStatus(_ context.Context, id string, status domain.EmailStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok {
		return domain.NewNotFound("visit email", id)
	}
	e.Status = status
	e.ErrorMessage = domain.TruncateError(errMsg)
	s.emails[id] = e
	return nil
}

func (s *MemoryStore) ListEmails(_ context.Context, visitID string) ([]domain.VisitEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.VisitEmail{}
	for _, id := range s.emailOrder {
		if e := s.emails[id]; e.VisitID == visitID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryTx struct {
	store  *MemoryStore
	held   map[string]chan struct{}
	staged map[string]domain.Visit
	events []domain.VisitEvent
	notes  []domain.VisitNote
}

func (t *memoryTx) acquire(ctx context.Context, id string) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	l := t.store.lockFor(id)
	select {
	case l <- struct{}{}:
		t.held[id] = l
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memoryTx) release() {
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
}

func (t *memoryTx) lookup(id string) (domain.Visit, bool) {
	if v, ok := t.staged[id]; ok {
		return v, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.visits[id]
	return v, ok
}

func (t *memoryTx) Insert(ctx context.Context, v *domain.Visit) error {
	if err := t.acquire(ctx, v.ID); err != nil {
		return err
	}
	if _, exists := t.lookup(v.ID); exists {
		return domain.NewValidation("id", "visit already exists")
	}
	t.staged[v.ID] = *v
	return nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id string) (*domain.Visit, error) {
	if err := t.acquire(ctx, id); err != nil {
		return nil, err
	}
	v, ok := t.lookup(id)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *memoryTx) Update(ctx context.Context, v *domain.Visit) error {
	if err := t.acquire(ctx, v.ID); err != nil {
		return err
	}
	if _, ok := t.lookup(v.ID); !ok {
		return domain.NewNotFound("visit", v.ID)
	}
	t.staged[v.ID] = *v
	return nil
}

func (t *memoryTx) AppendEvent(_ context.Context, e *domain.VisitEvent) error {
	if _, ok := t.lookup(e.VisitID); !ok {
		return domain.NewNotFound("visit", e.VisitID)
	}
	t.events = append(t.events, *e)
	return nil
}

func (t *memoryTx) InsertNote(_ context.Context, n *domain.VisitNote) error {
	if _, ok := t.lookup(n.VisitID); !ok {
		return domain.NewNotFound("visit", n.VisitID)
	}
	t.notes = append(t.notes, *n)
	return nil
}

func (t *memoryTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range t.staged {
		s.visits[id] = v
	}
	for _, e := range t.events {
		s.events[e.VisitID] = append(s.events[e.VisitID], e)
	}
	for _, n := range t.notes {
		s.notes[n.VisitID] = append(s.notes[n.VisitID], n)
	}
}

var (
	_ VisitRepository = (*MemoryStore)(nil)
	_ EmailRepository = (*MemoryStore)(nil)
)
