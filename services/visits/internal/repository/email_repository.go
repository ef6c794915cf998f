package repository

import (
	"context"
	"fmt"

	"github.com/diagnosis/fieldops/services/visits/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type emailRepository struct {
	pool *pgxpool.Pool
}

func NewEmailRepository(pool *pgxpool.Pool) EmailRepository {
	return &emailRepository{pool: pool}
}

func (r *emailRepository) CreateEmail(ctx context.Context, e *domain.VisitEmail) error {
	const q = `INSERT INTO visit_emails (id, visit_id, to_email, subject, status, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, e.ID, e.VisitID, e.ToEmail, e.Subject, e.Status, nullIfEmpty(e.ErrorMessage), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert visit email: %w", err)
	}
	return nil
}

func (r *emailRepository) UpdateEmailStatus(ctx context.Context, id string, status domain.EmailStatus, errMsg string) error {
	const q = `UPDATE visit_emails SET status=$2, error_message=$3 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, status, nullIfEmpty(domain.TruncateError(errMsg)))
	if err != nil {
		return fmt.Errorf("update visit email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("visit email", id)
	}
	return nil
}

func (r *emailRepository) ListEmails(ctx context.Context, visitID string) ([]domain.VisitEmail, error) {
	const q = `SELECT id, visit_id, to_email, subject, status, error_message, created_at
		FROM visit_emails WHERE visit_id=$1 ORDER BY created_at ASC, seq ASC`
	key, ok := visitKey(visitID)
	if !ok {
		return []domain.VisitEmail{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("list visit emails: %w", err)
	}
	defer rows.Close()

	emails := []domain.VisitEmail{}
	for rows.Next() {
		var (
			e      domain.VisitEmail
			errMsg *string
		)
		if err := rows.Scan(&e.ID, &e.VisitID, &e.ToEmail, &e.Subject, &e.Status, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit email: %w", err)
		}
		e.ErrorMessage = derefString(errMsg)
		e.CreatedAt = e.CreatedAt.UTC()
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

var _ EmailRepository = (*emailRepository)(nil)
