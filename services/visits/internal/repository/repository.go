package repository

import (
	"context"
	"time"

	"github.com/diagnosis/fieldops/services/visits/internal/domain"
)

const (
	queryTimeout = 3 * time.Second
	txTimeout    = 10 * time.Second
)

// VisitRepository persists visits and their append-only children.
// Lookups return (nil, nil) when the visit does not exist.
type VisitRepository interface {
	// InTx runs fn inside one transaction. Any error returned by fn rolls
	// back every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx VisitTx) error) error
	GetByID(ctx context.Context, id string) (*domain.Visit, error)
	List(ctx context.Context, filter domain.VisitFilter, page domain.PageSpec) ([]domain.Visit, int64, error)
	ListEvents(ctx context.Context, visitID string) ([]domain.VisitEvent, error)
	ListNotes(ctx context.Context, visitID string) ([]domain.VisitNote, error)
}

// VisitTx is the write side of a single command.
type VisitTx interface {
	Insert(ctx context.Context, v *domain.Visit) error
	// GetForUpdate loads a visit and holds its row lock until the
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Visit, error)
	Update(ctx context.Context, v *domain.Visit) error
	AppendEvent(ctx context.Context, e *domain.VisitEvent) error
	InsertNote(ctx context.Context, n *domain.VisitNote) error
}

// EmailRepository stores completion email attempts.
type EmailRepository interface {
	CreateEmail(ctx context.Context, e *domain.VisitEmail) error
	UpdateEmailStatus(ctx context.Context, id string, status domain.EmailStatus, errMsg string) error
	ListEmails(ctx context.Context, visitID string) ([]domain.VisitEmail, error)
}
