package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type EventType string

const (
	EventVisitScheduled EventType = "VisitScheduled"
	EventVisitStarted   EventType = "VisitStarted"
	EventVisitCompleted EventType = "VisitCompleted"
	EventVisitCancelled EventType = "VisitCancelled"
	EventVisitNoShow    EventType = "VisitNoShow"
	EventVisitUpdated   EventType = "VisitUpdated"
)

// VisitEvent is one immutable entry of a visit's audit trail.
type VisitEvent struct {
	ID        string    `json:"id"`
	VisitID   string    `json:"visitId"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actorId,omitempty"`
	GeoLat    *float64  `json:"geoLat,omitempty"`
	GeoLng    *float64  `json:"geoLng,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewVisitEvent(visitID string, typ EventType, actorID string, now time.Time) VisitEvent {
	return VisitEvent{
		ID:        uuid.NewString(),
		VisitID:   visitID,
		Type:      typ,
		ActorID:   strings.TrimSpace(actorID),
		CreatedAt: now.UTC(),
	}
}

// Geo is an optional coordinate captured at check-in or check-out.
type Geo struct {
	Lat *float64
	Lng *float64
}

func (g Geo) Validate() error {
	if g.Lat != nil && (*g.Lat < -90 || *g.Lat > 90) {
		return NewValidation("lat", "must be between -90 and 90")
	}
	if g.Lng != nil && (*g.Lng < -180 || *g.Lng > 180) {
		return NewValidation("lng", "must be between -180 and 180")
	}
	return nil
}

func ValidateWorkSummary(s string) error {
	if utf8.RuneCountInString(s) > MaxWorkSummaryLength {
		return NewValidation("workSummary", fmt.Sprintf("must be at most %d characters", MaxWorkSummaryLength))
	}
	return nil
}
