package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityInternal Visibility = "INTERNAL"
	VisibilityCustomer Visibility = "CUSTOMER"
)

func ParseVisibility(s string) (Visibility, bool) {
	switch v := Visibility(strings.ToUpper(strings.TrimSpace(s))); v {
	case VisibilityInternal, VisibilityCustomer:
		return v, true
	default:
		return "", false
	}
}

func (v *Visibility) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, ok := ParseVisibility(raw)
	if !ok {
		return fmt.Errorf("unknown visibility %q", raw)
	}
	*v = parsed
	return nil
}

type VisitNote struct {
	ID         string     `json:"id"`
	VisitID    string     `json:"visitId"`
	AuthorID   string     `json:"authorId,omitempty"`
	Visibility Visibility `json:"visibility"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewVisitNote rejects blank bodies and defaults visibility to INTERNAL.
func NewVisitNote(visitID, authorID string, visibility Visibility, body string, now time.Time) (*VisitNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, NewValidation("body", "must not be blank")
	}
	if utf8.RuneCountInString(body) > MaxNoteBodyLength {
		return nil, NewValidation("body", fmt.Sprintf("must be at most %d characters", MaxNoteBodyLength))
	}
	if visibility == "" {
		visibility = VisibilityInternal
	}
	return &VisitNote{
		ID:         uuid.NewString(),
		VisitID:    visitID,
		AuthorID:   strings.TrimSpace(authorID),
		Visibility: visibility,
		Body:       body,
		CreatedAt:  now.UTC(),
	}, nil
}
