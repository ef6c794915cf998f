package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type EmailStatus string

const (
	EmailPending EmailStatus = "PENDING"
	EmailSent    EmailStatus = "SENT"
	EmailError   EmailStatus = "ERROR"
)

const MaxEmailErrorLength = 1000

// VisitEmail records one completion email attempt. It belongs to the
// notification side channel, never to the visit transaction.
type VisitEmail struct {
	ID           string      `json:"id"`
	VisitID      string      `json:"visitId"`
	ToEmail      string      `json:"toEmail"`
	Subject      string      `json:"subject"`
	Status       EmailStatus `json:"status"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func NewPendingEmail(visitID, to, subject string, now time.Time) *VisitEmail {
	return &VisitEmail{
		ID:        uuid.NewString(),
		VisitID:   visitID,
		ToEmail:   to,
		Subject:   subject,
		Status:    EmailPending,
		CreatedAt: now.UTC(),
	}
}

// TruncateError cuts msg to MaxEmailErrorLength runes.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxEmailErrorLength {
		return msg
	}
	return string([]rune(msg)[:MaxEmailErrorLength])
}
