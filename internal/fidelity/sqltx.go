package fidelity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/store"
)

var ErrDuplicateEntry = errors.New("order already has a ledger entry of this type")

// SQLTx implements LedgerTx on top of a database/sql transaction.
type SQLTx struct {
	tx *sql.Tx
}

func NewSQLTx(tx *sql.Tx) *SQLTx {
	return &SQLTx{tx: tx}
}

func (t *SQLTx) LockUser(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT fidelity_points FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (t *SQLTx) AddPoints(ctx context.Context, userID string, delta int64) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE users SET fidelity_points = fidelity_points + $2
		WHERE id = $1 AND fidelity_points + $2 >= 0
	`, userID, delta)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (t *SQLTx) HasOrderEntry(ctx context.Context, orderID string, entryType domain.EntryType) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM fidelity_point_history WHERE order_id = $1 AND type = $2)
	`, orderID, entryType).Scan(&exists)
	return exists, err
}

func (t *SQLTx) AppendEntry(ctx context.Context, entry *domain.HistoryEntry) error {
	entry.ID = uuid.New().String()
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO fidelity_point_history (id, user_id, order_id, points, type, description, reference, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, entry.ID, entry.UserID, entry.OrderID, entry.Points, entry.Type, entry.Description,
		entry.Reference, entry.CreatedBy).Scan(&entry.CreatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.Type)
		}
		return err
	}
	return nil
}
