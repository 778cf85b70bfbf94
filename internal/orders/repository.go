package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/fidelity"
	"github.com/joao-fontenele/parashop/internal/store"
)

const orderColumns = `
	o.id, o.user_id, o.order_number, o.status, o.payment_status, o.payment_method,
	o.subtotal, o.shipping_cost, o.total, o.notes, o.created_at, o.updated_at,
	o.shipped_at, o.delivered_at,
	u.email, u.first_name, u.last_name, u.phone, u.fidelity_points`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		order.ID = uuid.New().String()

		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (id, user_id, order_number, status, payment_status, payment_method,
			                    subtotal, shipping_cost, total, notes, created_at, updated_at)
			VALUES ($1, $2, next_order_number(),
			        $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING order_number, updated_at
		`, order.ID, order.UserID, order.Status, order.PaymentStatus, order.PaymentMethod,
			order.Subtotal, order.ShippingCost, order.Total, order.Notes, order.CreatedAt,
		).Scan(&order.OrderNumber, &order.UpdatedAt)
		if err != nil {
			if store.IsForeignKeyViolation(err) {
				return domain.ErrUserNotFound
			}
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.ID = uuid.New().String()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, total)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, item.ID, order.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Total)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+`
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := loadItems(ctx, r.db, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+`
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	return r.collect(ctx, rows)
}

type AdminFilter struct {
	Search        string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Page          int
	Limit         int
}

// ListAdmin pages through all orders, newest first, narrowed by filter.
// Search matches the order number and the customer's name or email.
func (r *OrderRepository) ListAdmin(ctx context.Context, filter AdminFilter) ([]domain.Order, int, error) {
	_, limit, offset := store.Page(filter.Page, filter.Limit)
	pattern := "%" + filter.Search + "%"

	where := `
		WHERE ($1 = '' OR o.order_number ILIKE $2 OR u.first_name ILIKE $2
		       OR u.last_name ILIKE $2 OR u.email ILIKE $2)
		  AND ($3 = '' OR o.status = $3)
		  AND ($4 = '' OR o.payment_status = $4)`
	args := []any{filter.Search, pattern, string(filter.Status), string(filter.PaymentStatus)}

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders o JOIN users u ON u.id = o.user_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+`
		FROM orders o JOIN users u ON u.id = o.user_id`+where+`
		ORDER BY o.created_at DESC
		LIMIT $5 OFFSET $6
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}

	orders, err := r.collect(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *OrderRepository) collect(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	defer func() { _ = rows.Close() }()

	var list []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	if err := loadItems(ctx, r.db, list); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(list))
	for _, o := range list {
		orders = append(orders, *o)
	}
	return orders, nil
}

// InTx runs fn in a transaction whose ledger writes commit or roll back
// together with the order update.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx StatusTx) error) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&statusTx{SQLTx: fidelity.NewSQLTx(tx), tx: tx})
	})
}

type statusTx struct {
	*fidelity.SQLTx
	tx *sql.Tx
}

func (t *statusTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+`
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	if err := loadItems(ctx, t.tx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (t *statusTx) SaveStatus(ctx context.Context, order *domain.Order) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, shipped_at = $4, delivered_at = $5, updated_at = $6
		WHERE id = $1
	`, order.ID, order.Status, order.PaymentStatus, order.ShippedAt, order.DeliveredAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	order := &domain.Order{Customer: &domain.OrderCustomer{}, Items: []domain.OrderItem{}}
	var shippedAt, deliveredAt sql.NullTime

	err := row.Scan(&order.ID, &order.UserID, &order.OrderNumber, &order.Status, &order.PaymentStatus,
		&order.PaymentMethod, &order.Subtotal, &order.ShippingCost, &order.Total, &order.Notes,
		&order.CreatedAt, &order.UpdatedAt, &shippedAt, &deliveredAt,
		&order.Customer.Email, &order.Customer.FirstName, &order.Customer.LastName,
		&order.Customer.Phone, &order.Customer.FidelityPoints)
	if err != nil {
		return nil, err
	}

	if shippedAt.Valid {
		order.ShippedAt = timePtr(shippedAt.Time)
	}
	if deliveredAt.Valid {
		order.DeliveredAt = timePtr(deliveredAt.Time)
	}
	return order, nil
}

func loadItems(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, total
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, product_id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return rows.Err()
}

func timePtr(t time.Time) *time.Time {
	return &t
}
