package events

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/store"
)

const eventColumns = `id, image, url, start_date, end_date, sort_order, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx})
	})
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Event, error) {
	event, err := scanEvent(r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

func (r *Repository) ListActive(ctx context.Context, at *time.Time) ([]domain.Event, error) {
	var instant sql.NullTime
	if at != nil {
		instant = sql.NullTime{Time: *at, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE is_active AND ($1::timestamptz IS NULL OR (start_date <= $1 AND end_date >= $1))
		ORDER BY sort_order, start_date
	`, instant)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

type sqlTx struct {
	tx *sql.Tx
}

// Conflicting matches closed windows, the same rule as the
// events_active_no_overlap constraint.
func (t *sqlTx) Conflicting(ctx context.Context, w domain.Window, excludeID string) ([]domain.Event, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE is_active AND start_date <= $2 AND end_date >= $1 AND id::text <> $3
		ORDER BY start_date
	`, w.Start, w.End, excludeID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (t *sqlTx) Lock(ctx context.Context, id string) (*domain.Event, error) {
	event, err := scanEvent(t.tx.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (t *sqlTx) Insert(ctx context.Context, event *domain.Event) error {
	event.ID = uuid.New().String()
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO events (id, image, url, start_date, end_date, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, event.ID, event.Image, event.URL, event.StartDate, event.EndDate, event.SortOrder, event.IsActive,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	return overlapErr(err)
}

func (t *sqlTx) Update(ctx context.Context, event *domain.Event) error {
	err := t.tx.QueryRowContext(ctx, `
		UPDATE events
		SET image = $2, url = $3, start_date = $4, end_date = $5, sort_order = $6, is_active = $7,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, event.ID, event.Image, event.URL, event.StartDate, event.EndDate, event.SortOrder, event.IsActive,
	).Scan(&event.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrEventNotFound
	}
	return overlapErr(err)
}

// overlapErr maps the exclusion constraint to ErrEventOverlap. It fires when
// a concurrent write won the race past Conflicting.
func overlapErr(err error) error {
	if err != nil && store.IsExclusionViolation(err) {
		return domain.ErrEventOverlap
	}
	return err
}

func scanEvent(row scanner) (*domain.Event, error) {
	event := &domain.Event{}
	var url sql.NullString
	err := row.Scan(&event.ID, &event.Image, &url, &event.StartDate, &event.EndDate,
		&event.SortOrder, &event.IsActive, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if url.Valid {
		event.URL = &url.String
	}
	return event, nil
}

func collect(rows *sql.Rows) ([]domain.Event, error) {
	defer func() { _ = rows.Close() }()

	events := []domain.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
