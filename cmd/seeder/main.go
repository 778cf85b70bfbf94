package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/joao-fontenele/parashop/internal/config"
	"github.com/joao-fontenele/parashop/internal/domain"
)

// Seeded orders stay before DELIVERED so balances and history start empty.
var seedStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	clients := flag.Int("clients", 100, "number of client accounts to create")
	ordersPerClient := flag.Int("orders", 3, "orders per client")
	flag.Parse()

	cfg := config.Load("")
	if err := cfg.Require("POSTGRES_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close(ctx) }()

	var existing int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&existing); err != nil {
		logger.Error("failed to count users", "error", err)
		os.Exit(1)
	}
	if existing > 0 {
		logger.Info("database already seeded, skipping", "users", existing)
		return
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		logger.Error("failed to begin transaction", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userIDs, err := seedUsers(ctx, tx, *clients)
	if err != nil {
		logger.Error("failed to seed users", "error", err)
		os.Exit(1)
	}

	orderCount, err := seedOrders(ctx, tx, userIDs, *ordersPerClient)
	if err != nil {
		logger.Error("failed to seed orders", "error", err)
		os.Exit(1)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("failed to commit seed", "error", err)
		os.Exit(1)
	}

	logger.Info("database seeded", "users", len(userIDs)+2, "orders", orderCount)
}

// seedUsers creates one admin, one employee and n clients. Only client ids
// are returned.
func seedUsers(ctx context.Context, tx pgx.Tx, n int) ([]uuid.UUID, error) {
	now := time.Now()
	rows := [][]any{
		{[16]byte(uuid.New()), "admin@parashop.local", "Admin", "Parashop", "", string(domain.RoleAdmin), int64(0), now},
		{[16]byte(uuid.New()), "staff@parashop.local", "Staff", "Parashop", "", string(domain.RoleEmployee), int64(0), now},
	}

	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		ids = append(ids, id)
		rows = append(rows, []any{
			[16]byte(id),
			fmt.Sprintf("client%04d@parashop.local", i+1),
			"Client",
			fmt.Sprintf("%04d", i+1),
			fmt.Sprintf("+2126%08d", i+1),
			string(domain.RoleClient),
			int64(0),
			now,
		})
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"users"},
		[]string{"id", "email", "first_name", "last_name", "phone", "role", "fidelity_points", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return ids, err
}

func seedOrders(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID, perUser int) (int64, error) {
	total := len(userIDs) * perUser
	if total == 0 {
		return 0, nil
	}

	numbers, err := reserveOrderNumbers(ctx, tx, total)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	orderRows := make([][]any, 0, total)
	itemRows := make([][]any, 0, total)

	for i, userID := range userIDs {
		for j := 0; j < perUser; j++ {
			k := i*perUser + j
			orderID := uuid.New()
			qty := int32(rand.IntN(3) + 1)
			unitCents := int64(rand.IntN(15000) + 500)
			subtotal := unitCents * int64(qty)
			shipping := int64(2000)
			status := seedStatuses[k%len(seedStatuses)]
			createdAt := now.Add(-time.Duration(total-k) * time.Hour)

			var shippedAt any
			if status == domain.OrderStatusShipped {
				shippedAt = createdAt.Add(2 * time.Hour)
			}

			orderRows = append(orderRows, []any{
				[16]byte(orderID), [16]byte(userID), numbers[k], string(status), string(domain.PaymentStatusPending),
				"CASH_ON_DELIVERY", cents(subtotal), cents(shipping), cents(subtotal + shipping), "",
				createdAt, createdAt, shippedAt,
			})
			itemRows = append(itemRows, []any{
				[16]byte(uuid.New()), [16]byte(orderID), fmt.Sprintf("SKU-%05d", rand.IntN(500)+1),
				qty, cents(unitCents), cents(subtotal),
			})
		}
	}

	count, err := tx.CopyFrom(ctx,
		pgx.Identifier{"orders"},
		[]string{"id", "user_id", "order_number", "status", "payment_status", "payment_method",
			"subtotal", "shipping_cost", "total", "notes", "created_at", "updated_at", "shipped_at"},
		pgx.CopyFromRows(orderRows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy orders: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"id", "order_id", "product_id", "quantity", "unit_price", "total"},
		pgx.CopyFromRows(itemRows),
	); err != nil {
		return 0, fmt.Errorf("copy order items: %w", err)
	}

	return count, nil
}

func reserveOrderNumbers(ctx context.Context, tx pgx.Tx, n int) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT next_order_number() FROM generate_series(1, $1)
	`, n)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func cents(v int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(v), Exp: -2, Valid: true}
}
