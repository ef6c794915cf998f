package domain

import "time"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// VisitFilter narrows a visit listing. Every non-empty field is ANDed.
// From and To bound scheduledStartAt inclusively.
type VisitFilter struct {
	CustomerID   string
	TechnicianID string
	State        *VisitState
	From         *time.Time
	To           *time.Time
}

// Matches is the in-process equivalent of the SQL predicate.
func (f VisitFilter) Matches(v *Visit) bool {
	if f.CustomerID != "" && v.CustomerID != f.CustomerID {
		return false
	}
	if f.TechnicianID != "" && v.TechnicianID != f.TechnicianID {
		return false
	}
	if f.State != nil && v.State != *f.State {
		return false
	}
	if f.From != nil && v.ScheduledStartAt.Before(*f.From) {
		return false
	}
	if f.To != nil && v.ScheduledStartAt.After(*f.To) {
		return false
	}
	return true
}

// PageSpec is a zero-based page request.
type PageSpec struct {
	Page int
	Size int
}

// Normalize clamps the page to sane bounds.
func (p PageSpec) Normalize(maxSize int) PageSpec {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

func (p PageSpec) Offset() int { return p.Page * p.Size }

type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
}

// DayWindow returns [date 00:00Z, next day 00:00Z - 1ns] for the UTC calendar
// day containing date.
func DayWindow(date time.Time) (time.Time, time.Time) {
	d := date.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to
}
