package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type VisitState string

const (
	StatePlanned   VisitState = "PLANNED"
	StateStarted   VisitState = "STARTED"
	StateDone      VisitState = "DONE"
	StateCancelled VisitState = "CANCELLED"
	StateNoShow    VisitState = "NO_SHOW"
)

func ParseVisitState(s string) (VisitState, bool) {
	switch st := VisitState(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatePlanned, StateStarted, StateDone, StateCancelled, StateNoShow:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition can leave the state.
func (s VisitState) IsTerminal() bool {
	switch s {
	case StateDone, StateCancelled, StateNoShow:
		return true
	default:
		return false
	}
}

func (s *VisitState) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, ok := ParseVisitState(raw)
	if !ok {
		return fmt.Errorf("unknown visit state %q", raw)
	}
	*s = st
	return nil
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, true
	default:
		return "", false
	}
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, ok := ParsePriority(raw)
	if !ok {
		return fmt.Errorf("unknown priority %q", raw)
	}
	*p = parsed
	return nil
}

// Command names a state machine operation.
type Command string

const (
	CommandStart    Command = "start"
	CommandComplete Command = "complete"
	CommandCancel   Command = "cancel"
	CommandNoShow   Command = "no-show"
	CommandUpdate   Command = "update"
)

// Field limits
const (
	MaxPurposeLength      = 200
	MaxNotesPlannedLength = 2000
	MaxNoteBodyLength     = 4000
	MaxWorkSummaryLength  = 4000
)

// Visit is the aggregate root for a scheduled on-site engagement.
// Mutate it only through the transition methods below.
type Visit struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customerId"`
	SiteID           string     `json:"siteId"`
	TechnicianID     string     `json:"technicianId"`
	State            VisitState `json:"state"`
	Priority         Priority   `json:"priority"`
	Purpose          string     `json:"purpose,omitempty"`
	ScheduledStartAt time.Time  `json:"scheduledStartAt"`
	ScheduledEndAt   time.Time  `json:"scheduledEndAt"`
	NotesPlanned     string     `json:"notesPlanned,omitempty"`
	CheckInAt        *time.Time `json:"checkInAt,omitempty"`
	CheckOutAt       *time.Time `json:"checkOutAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type NewVisitParams struct {
	CustomerID       string
	SiteID           string
	TechnicianID     string
	ScheduledStartAt time.Time
	ScheduledEndAt   time.Time
	Priority         Priority
	Purpose          string
	NotesPlanned     string
}

// NewPlannedVisit builds a PLANNED visit with a fresh id.
func NewPlannedVisit(p NewVisitParams, now time.Time) (*Visit, error) {
	required := []struct{ field, value string }{
		{"customerId", p.CustomerID},
		{"siteId", p.SiteID},
		{"technicianId", p.TechnicianID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, NewValidation(r.field, "is required")
		}
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}

	now = now.UTC()
	v := &Visit{
		ID:               uuid.NewString(),
		CustomerID:       strings.TrimSpace(p.CustomerID),
		SiteID:           strings.TrimSpace(p.SiteID),
		TechnicianID:     strings.TrimSpace(p.TechnicianID),
		State:            StatePlanned,
		Priority:         p.Priority,
		Purpose:          strings.TrimSpace(p.Purpose),
		ScheduledStartAt: p.ScheduledStartAt.UTC(),
		ScheduledEndAt:   p.ScheduledEndAt.UTC(),
		NotesPlanned:     strings.TrimSpace(p.NotesPlanned),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := v.validatePlanned(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Visit) validatePlanned() error {
	if v.ScheduledStartAt.IsZero() {
		return NewValidation("scheduledStartAt", "is required")
	}
	if v.ScheduledEndAt.IsZero() {
		return NewValidation("scheduledEndAt", "is required")
	}
	if !v.ScheduledEndAt.After(v.ScheduledStartAt) {
		return NewValidation("scheduledEndAt", "must be after scheduledStartAt")
	}
	if _, ok := ParsePriority(string(v.Priority)); !ok {
		return NewValidation("priority", fmt.Sprintf("unknown value %q", v.Priority))
	}
	if utf8.RuneCountInString(v.Purpose) > MaxPurposeLength {
		return NewValidation("purpose", fmt.Sprintf("must be at most %d characters", MaxPurposeLength))
	}
	if utf8.RuneCountInString(v.NotesPlanned) > MaxNotesPlannedLength {
		return NewValidation("notesPlanned", fmt.Sprintf("must be at most %d characters", MaxNotesPlannedLength))
	}
	return nil
}

// VisitPatch carries a partial update of the planned fields. Nil fields are
// left untouched.
type VisitPatch struct {
	ScheduledStartAt *time.Time `json:"scheduledStartAt,omitempty"`
	ScheduledEndAt   *time.Time `json:"scheduledEndAt,omitempty"`
	TechnicianID     *string    `json:"technicianId,omitempty"`
	Priority         *Priority  `json:"priority,omitempty"`
	Purpose          *string    `json:"purpose,omitempty"`
	NotesPlanned     *string    `json:"notesPlanned,omitempty"`
}

// ApplyPatch updates planned fields and returns the names of the fields that
// changed. The visit is left untouched when an error is returned.
func (v *Visit) ApplyPatch(p VisitPatch) ([]string, error) {
	if v.State != StatePlanned {
		return nil, NewInvalidTransition(v.ID, CommandUpdate, v.State)
	}

	next := *v
	if p.ScheduledStartAt != nil {
		next.ScheduledStartAt = p.ScheduledStartAt.UTC()
	}
	if p.ScheduledEndAt != nil {
		next.ScheduledEndAt = p.ScheduledEndAt.UTC()
	}
	if p.TechnicianID != nil {
		tech := strings.TrimSpace(*p.TechnicianID)
		if tech == "" {
			return nil, NewValidation("technicianId", "must not be blank")
		}
		next.TechnicianID = tech
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	if p.Purpose != nil {
		next.Purpose = strings.TrimSpace(*p.Purpose)
	}
	if p.NotesPlanned != nil {
		next.NotesPlanned = strings.TrimSpace(*p.NotesPlanned)
	}
	if err := next.validatePlanned(); err != nil {
		return nil, err
	}

	changes := v.changedFields(&next)
	*v = next
	return changes, nil
}

func (v *Visit) changedFields(next *Visit) []string {
	var changes []string
	if !v.ScheduledStartAt.Equal(next.ScheduledStartAt) {
		changes = append(changes, "scheduledStartAt")
	}
	if !v.ScheduledEndAt.Equal(next.ScheduledEndAt) {
		changes = append(changes, "scheduledEndAt")
	}
	if v.TechnicianID != next.TechnicianID {
		changes = append(changes, "technicianId")
	}
	if v.Priority != next.Priority {
		changes = append(changes, "priority")
	}
	if v.Purpose != next.Purpose {
		changes = append(changes, "purpose")
	}
	if v.NotesPlanned != next.NotesPlanned {
		changes = append(changes, "notesPlanned")
	}
	return changes
}

// Start moves PLANNED -> STARTED. checkInAt is only set if it is still empty.
func (v *Visit) Start(when time.Time) error {
	if v.State != StatePlanned {
		return NewInvalidTransition(v.ID, CommandStart, v.State)
	}
	if v.CheckInAt == nil {
		t := when.UTC()
		v.CheckInAt = &t
	}
	v.State = StateStarted
	return nil
}

// Complete moves STARTED -> DONE. checkOutAt must fall strictly after checkInAt.
func (v *Visit) Complete(when time.Time) error {
	if v.State != StateStarted {
		return NewInvalidTransition(v.ID, CommandComplete, v.State)
	}
	when = when.UTC()
	if v.CheckInAt != nil && !when.After(*v.CheckInAt) {
		return NewValidation("when", "check-out must be after check-in")
	}
	if v.CheckOutAt == nil {
		v.CheckOutAt = &when
	}
	v.State = StateDone
	return nil
}

func (v *Visit) Cancel() error {
	if v.State != StatePlanned {
		return NewInvalidTransition(v.ID, CommandCancel, v.State)
	}
	v.State = StateCancelled
	return nil
}

func (v *Visit) MarkNoShow() error {
	if v.State != StatePlanned {
		return NewInvalidTransition(v.ID, CommandNoShow, v.State)
	}
	v.State = StateNoShow
	return nil
}

// Touch refreshes updatedAt after a mutation.
func (v *Visit) Touch(now time.Time) {
	v.UpdatedAt = now.UTC()
}
