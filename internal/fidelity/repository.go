package fidelity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/store"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(NewSQLTx(tx))
	})
}

// GetUser returns nil when no user has id, including ids that are not uuids.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	user := &domain.User{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, phone, role, fidelity_points, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Phone,
		&user.Role, &user.FidelityPoints, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

// History returns a page of the user's entries, newest first, and the total
// entry count.
func (r *Repository) History(ctx context.Context, userID string, page, limit int) ([]domain.HistoryEntry, int, error) {
	_, limit, offset := store.Page(page, limit)

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fidelity_point_history WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT h.id, h.user_id, h.order_id, h.points, h.type, h.description, h.reference,
		       h.created_by, h.created_at, o.order_number, o.total
		FROM fidelity_point_history h
		LEFT JOIN orders o ON o.id = h.order_id
		WHERE h.user_id = $1
		ORDER BY h.created_at DESC, h.id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			entry       domain.HistoryEntry
			orderNumber sql.NullString
			orderTotal  decimal.NullDecimal
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.OrderID, &entry.Points, &entry.Type,
			&entry.Description, &entry.Reference, &entry.CreatedBy, &entry.CreatedAt,
			&orderNumber, &orderTotal); err != nil {
			return nil, 0, err
		}
		if orderNumber.Valid {
			entry.Order = &domain.EntryOrder{OrderNumber: orderNumber.String, Total: orderTotal.Decimal}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// ListBalances pages through users ordered by balance, optionally filtered by
// a case-insensitive match on email, name or phone.
func (r *Repository) ListBalances(ctx context.Context, search string, page, limit int) ([]domain.User, int, error) {
	_, limit, offset := store.Page(page, limit)
	pattern := "%" + search + "%"

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users
		WHERE $1 = '' OR email ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2 OR phone ILIKE $2
	`, search, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, first_name, last_name, phone, role, fidelity_points, created_at
		FROM users
		WHERE $1 = '' OR email ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2 OR phone ILIKE $2
		ORDER BY fidelity_points DESC, id
		LIMIT $3 OFFSET $4
	`, search, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone,
			&u.Role, &u.FidelityPoints, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}
