package domain

import "time"

type CreateVisitRequest struct {
	CustomerID       string    `json:"customerId"`
	SiteID           string    `json:"siteId"`
	TechnicianID     string    `json:"technicianId"`
	ScheduledStartAt time.Time `json:"scheduledStartAt"`
	ScheduledEndAt   time.Time `json:"scheduledEndAt"`
	Priority         Priority  `json:"priority,omitempty"`
	Purpose          string    `json:"purpose,omitempty"`
	NotesPlanned     string    `json:"notesPlanned,omitempty"`
}

func (r CreateVisitRequest) Params() NewVisitParams {
	return NewVisitParams{
		CustomerID:       r.CustomerID,
		SiteID:           r.SiteID,
		TechnicianID:     r.TechnicianID,
		ScheduledStartAt: r.ScheduledStartAt,
		ScheduledEndAt:   r.ScheduledEndAt,
		Priority:         r.Priority,
		Purpose:          r.Purpose,
		NotesPlanned:     r.NotesPlanned,
	}
}

type CheckInRequest struct {
	ActorID string     `json:"actorId"`
	When    *time.Time `json:"when,omitempty"`
	Lat     *float64   `json:"lat,omitempty"`
	Lng     *float64   `json:"lng,omitempty"`
}

type CheckOutRequest struct {
	ActorID     string     `json:"actorId"`
	When        *time.Time `json:"when,omitempty"`
	Lat         *float64   `json:"lat,omitempty"`
	Lng         *float64   `json:"lng,omitempty"`
	WorkSummary string     `json:"workSummary,omitempty"`
}

type AddNoteRequest struct {
	AuthorID   string     `json:"authorId"`
	Visibility Visibility `json:"visibility,omitempty"`
	Body       string     `json:"body"`
}
