package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/fieldops/services/visits/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the visits schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply visits schema: %w", err)
	}
	return nil
}

type visitRepository struct {
	pool *pgxpool.Pool
}

func NewVisitRepository(pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{pool: pool}
}

const visitCols = `id, customer_id, site_id, technician_id, state, priority,
purpose, scheduled_start_at, scheduled_end_at, notes_planned,
check_in_at, check_out_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*domain.Visit, error) {
	var v domain.Visit
	err := row.Scan(
		&v.ID, &v.CustomerID, &v.SiteID, &v.TechnicianID, &v.State, &v.Priority,
		&v.Purpose, &v.ScheduledStartAt, &v.ScheduledEndAt, &v.NotesPlanned,
		&v.CheckInAt, &v.CheckOutAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.ScheduledStartAt = v.ScheduledStartAt.UTC()
	v.ScheduledEndAt = v.ScheduledEndAt.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	v.CheckInAt = utcPtr(v.CheckInAt)
	v.CheckOutAt = utcPtr(v.CheckOutAt)
	return &v, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// visitKey returns the canonical form of a visit id. Ids that are not UUIDs
// cannot exist in the table, so callers treat them as missing rows.
func visitKey(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func (r *visitRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx VisitTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &visitTx{tx: tx})
	})
}

func (r *visitRepository) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits WHERE id=$1`
	key, ok := visitKey(id)
	if !ok {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	v, err := scanVisit(r.pool.QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

func buildVisitWhere(f domain.VisitFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.TechnicianID != "" {
		add("technician_id = $%d", f.TechnicianID)
	}
	if f.State != nil {
		add("state = $%d", *f.State)
	}
	if f.From != nil {
		add("scheduled_start_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_start_at <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *visitRepository) List(ctx context.Context, filter domain.VisitFilter, page domain.PageSpec) ([]domain.Visit, int64, error) {
	where, args := buildVisitWhere(filter)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM visits`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}

	q := `SELECT ` + visitCols + ` FROM visits` + where +
		fmt.Sprintf(` ORDER BY scheduled_start_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, q, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]domain.Visit, 0, page.Size)
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, total, nil
}

func (r *visitRepository) ListEvents(ctx context.Context, visitID string) ([]domain.VisitEvent, error) {
	const q = `SELECT id, visit_id, type, actor_id, geo_lat, geo_lng, payload, created_at
		FROM visit_events WHERE visit_id=$1 ORDER BY created_at ASC, seq ASC`
	key, ok := visitKey(visitID)
	if !ok {
		return []domain.VisitEvent{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("list visit events: %w", err)
	}
	defer rows.Close()

	events := []domain.VisitEvent{}
	for rows.Next() {
		var (
			e              domain.VisitEvent
			actor, payload *string
		)
		if err := rows.Scan(&e.ID, &e.VisitID, &e.Type, &actor, &e.GeoLat, &e.GeoLng, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit event: %w", err)
		}
		e.ActorID = derefString(actor)
		e.Payload = derefString(payload)
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *visitRepository) ListNotes(ctx context.Context, visitID string) ([]domain.VisitNote, error) {
	const q = `SELECT id, visit_id, author_id, visibility, body, created_at
		FROM visit_notes WHERE visit_id=$1 ORDER BY created_at ASC, seq ASC`
	key, ok := visitKey(visitID)
	if !ok {
		return []domain.VisitNote{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("list visit notes: %w", err)
	}
	defer rows.Close()

	notes := []domain.VisitNote{}
	for rows.Next() {
		var (
			n      domain.VisitNote
			author *string
		)
		if err := rows.Scan(&n.ID, &n.VisitID, &author, &n.Visibility, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit note: %w", err)
		}
		n.AuthorID = derefString(author)
		n.CreatedAt = n.CreatedAt.UTC()
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

type visitTx struct {
	tx pgx.Tx
}

func (t *visitTx) Insert(ctx context.Context, v *domain.Visit) error {
	const q = `INSERT INTO visits (` + visitCols + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := t.tx.Exec(ctx, q,
		v.ID, v.CustomerID, v.SiteID, v.TechnicianID, v.State, v.Priority,
		v.Purpose, v.ScheduledStartAt, v.ScheduledEndAt, v.NotesPlanned,
		v.CheckInAt, v.CheckOutAt, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (t *visitTx) GetForUpdate(ctx context.Context, id string) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits WHERE id=$1 FOR UPDATE`
	key, ok := visitKey(id)
	if !ok {
		return nil, nil
	}
	v, err := scanVisit(t.tx.QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock visit: %w", err)
	}
	return v, nil
}

func (t *visitTx) Update(ctx context.Context, v *domain.Visit) error {
	const q = `UPDATE visits SET
			technician_id=$2, state=$3, priority=$4, purpose=$5,
			scheduled_start_at=$6, scheduled_end_at=$7, notes_planned=$8,
			check_in_at=$9, check_out_at=$10, updated_at=$11
		WHERE id=$1`
	tag, err := t.tx.Exec(ctx, q,
		v.ID, v.TechnicianID, v.State, v.Priority, v.Purpose,
		v.ScheduledStartAt, v.ScheduledEndAt, v.NotesPlanned,
		v.CheckInAt, v.CheckOutAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("visit", v.ID)
	}
	return nil
}

func (t *visitTx) AppendEvent(ctx context.Context, e *domain.VisitEvent) error {
	const q = `INSERT INTO visit_events (id, visit_id, type, actor_id, geo_lat, geo_lng, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := t.tx.Exec(ctx, q,
		e.ID, e.VisitID, e.Type, nullIfEmpty(e.ActorID), e.GeoLat, e.GeoLng, nullIfEmpty(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append visit event: %w", err)
	}
	return nil
}

func (t *visitTx) InsertNote(ctx context.Context, n *domain.VisitNote) error {
	const q = `INSERT INTO visit_notes (id, visit_id, author_id, visibility, body, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := t.tx.Exec(ctx, q, n.ID, n.VisitID, nullIfEmpty(n.AuthorID), n.Visibility, n.Body, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert visit note: %w", err)
	}
	return nil
}

var _ VisitRepository = (*visitRepository)(nil)
