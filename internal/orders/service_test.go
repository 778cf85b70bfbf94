package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/fidelity"
)

const customerID = "22222222-2222-2222-2222-222222222222"

var admin = domain.Actor{UserID: "33333333-3333-3333-3333-333333333333", Role: domain.RoleAdmin}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store   *memStore
	created *recordingPublisher
	changed *recordingPublisher
	service *Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		created: &recordingPublisher{},
		changed: &recordingPublisher{},
		now:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store.ledger.AddUser(customerID, 0)
	f.service = NewService(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithPublishers(f.created, f.changed),
		WithClock(func() time.Time {
			f.now = f.now.Add(time.Minute)
			return f.now
		}),
	)
	return f
}

func (f *fixture) update(t *testing.T, id string, status domain.OrderStatus) *TransitionResult {
	t.Helper()
	result, err := f.service.UpdateStatus(context.Background(), id, UpdateStatusRequest{Status: string(status)}, admin)
	require.NoError(t, err)
	return result
}

func TestUpdateStatus_DeliveredAwardsPoints(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "150.50", domain.OrderStatusShipped)

	result := f.update(t, order.ID, domain.OrderStatusDelivered)

	require.Equal(t, domain.OrderStatusShipped, result.PreviousStatus)
	require.Equal(t, domain.OrderStatusDelivered, result.Order.Status)
	require.Equal(t, int64(3010), result.Posting.Awarded())
	require.NotNil(t, result.Order.DeliveredAt)
	require.Equal(t, int64(3010), result.Order.Customer.FidelityPoints)
	require.Equal(t, int64(3010), f.store.ledger.Balance(customerID))

	require.Equal(t, 1, f.changed.count())
	event := f.changed.events[0].(domain.OrderStatusChangedEvent)
	require.Equal(t, int64(3010), event.PointsAwarded)
	require.Equal(t, domain.OrderStatusShipped, event.PreviousStatus)
	require.Equal(t, customerID+"@example.com", event.Email)
}

func TestUpdateStatus_CancelAfterDeliveryRefunds(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "150.50", domain.OrderStatusShipped)

	f.update(t, order.ID, domain.OrderStatusDelivered)
	result := f.update(t, order.ID, domain.OrderStatusCancelled)

	require.Equal(t, int64(3010), result.Posting.Refunded())
	require.Equal(t, int64(0), f.store.ledger.Balance(customerID))

	entries := f.store.ledger.Entries(customerID)
	require.Len(t, entries, 2)
	require.Equal(t, domain.EntryRefund, entries[1].Type)
	require.Equal(t, int64(-3010), entries[1].Points)
}

func TestUpdateStatus_OrdersAwardIndependently(t *testing.T) {
	f := newFixture(t)
	first := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)
	second := f.store.seed(customerID, "150.50", domain.OrderStatusShipped)

	f.update(t, first.ID, domain.OrderStatusDelivered)
	f.update(t, second.ID, domain.OrderStatusDelivered)

	require.Equal(t, int64(7010), f.store.ledger.Balance(customerID))
	require.Equal(t, f.store.ledger.EntrySum(customerID), f.store.ledger.Balance(customerID))
}

func TestUpdateStatus_RepeatedDeliveredDoesNotReaward(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)

	f.update(t, order.ID, domain.OrderStatusDelivered)
	again := f.update(t, order.ID, domain.OrderStatusDelivered)

	require.Equal(t, fidelity.EffectNone, again.Posting.Effect)
	require.Equal(t, int64(4000), f.store.ledger.Balance(customerID))
	require.Equal(t, 1, f.changed.count())
}

func TestUpdateStatus_RedeliveryAfterCancelDoesNotReaward(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)

	f.update(t, order.ID, domain.OrderStatusDelivered)
	f.update(t, order.ID, domain.OrderStatusCancelled)
	result := f.update(t, order.ID, domain.OrderStatusDelivered)

	require.True(t, result.Posting.Skipped)
	require.Equal(t, fidelity.SkipAlreadyAwarded, result.Posting.Reason)
	require.Equal(t, int64(0), f.store.ledger.Balance(customerID))
}

func TestUpdateStatus_TimestampsAreSetOnce(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "20.00", domain.OrderStatusProcessing)

	shipped := f.update(t, order.ID, domain.OrderStatusShipped).Order.ShippedAt
	delivered := f.update(t, order.ID, domain.OrderStatusDelivered).Order.DeliveredAt
	f.update(t, order.ID, domain.OrderStatusShipped)
	f.update(t, order.ID, domain.OrderStatusCancelled)
	final := f.update(t, order.ID, domain.OrderStatusDelivered).Order

	require.NotNil(t, shipped)
	require.NotNil(t, delivered)
	require.True(t, final.ShippedAt.Equal(*shipped))
	require.True(t, final.DeliveredAt.Equal(*delivered))
	require.True(t, final.UpdatedAt.After(*delivered))
}

func TestUpdateStatus_LedgerFailureRollsBackStatus(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)
	f.store.ledger.FailAppend = errBoom

	_, err := f.service.UpdateStatus(context.Background(), order.ID,
		UpdateStatusRequest{Status: "DELIVERED", PaymentStatus: "COMPLETED"}, admin)

	require.ErrorIs(t, err, errBoom)
	stored := f.store.order(order.ID)
	require.Equal(t, domain.OrderStatusShipped, stored.Status)
	require.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	require.Nil(t, stored.DeliveredAt)
	require.Equal(t, int64(0), f.store.ledger.Balance(customerID))
	require.Empty(t, f.store.ledger.Entries(customerID))
	require.Zero(t, f.changed.count())

	// The same request succeeds once the fault clears.
	result := f.update(t, order.ID, domain.OrderStatusDelivered)
	require.Equal(t, int64(4000), result.Posting.Awarded())
}

func TestUpdateStatus_SaveFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)
	f.store.failSave = errBoom

	_, err := f.service.UpdateStatus(context.Background(), order.ID, UpdateStatusRequest{Status: "DELIVERED"}, admin)

	require.ErrorIs(t, err, errBoom)
	require.Equal(t, int64(0), f.store.ledger.Balance(customerID))
	require.Empty(t, f.store.ledger.Entries(customerID))
}

func TestUpdateStatus_RefundSkippedStillCommitsStatus(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)
	f.update(t, order.ID, domain.OrderStatusDelivered)

	// Customer spent part of the award.
	_, err := fidelity.NewService(f.store.ledger, f.store.ledger, nil, slog.New(slog.NewTextHandler(io.Discard, nil))).
		Adjust(context.Background(), fidelity.Adjustment{UserID: customerID, Points: -1000, Description: "redeemed"}, admin)
	require.NoError(t, err)

	result := f.update(t, order.ID, domain.OrderStatusRefunded)

	require.True(t, result.Posting.Skipped)
	require.Equal(t, fidelity.SkipInsufficientPoints, result.Posting.Reason)
	require.Equal(t, domain.OrderStatusRefunded, f.store.order(order.ID).Status)
	require.Equal(t, int64(3000), f.store.ledger.Balance(customerID))
	require.Equal(t, f.store.ledger.EntrySum(customerID), f.store.ledger.Balance(customerID))
}

func TestUpdateStatus_PaymentOnly(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusConfirmed)

	result, err := f.service.UpdateStatus(context.Background(), order.ID,
		UpdateStatusRequest{PaymentStatus: "COMPLETED"}, admin)

	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, result.Order.Status)
	require.Equal(t, domain.PaymentStatusCompleted, result.Order.PaymentStatus)
	require.Zero(t, f.changed.count())
}

func TestUpdateStatus_Validation(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)

	tests := []struct {
		name string
		req  UpdateStatusRequest
	}{
		{"empty request", UpdateStatusRequest{}},
		{"unknown status", UpdateStatusRequest{Status: "LOST"}},
		{"lowercase status", UpdateStatusRequest{Status: "delivered"}},
		{"unknown payment status", UpdateStatusRequest{Status: "DELIVERED", PaymentStatus: "PAID"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.UpdateStatus(context.Background(), order.ID, tt.req, admin)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	require.Equal(t, domain.OrderStatusShipped, f.store.order(order.ID).Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdateStatus(context.Background(), "44444444-4444-4444-4444-444444444444",
		UpdateStatusRequest{Status: "DELIVERED"}, admin)

	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateStatus_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.changed.err = errBoom
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)

	result := f.update(t, order.ID, domain.OrderStatusDelivered)

	require.Equal(t, int64(4000), result.Posting.Awarded())
}

func TestUpdateStatus_ConcurrentDeliveriesAwardOnce(t *testing.T) {
	f := newFixture(t)
	order := f.store.seed(customerID, "200.00", domain.OrderStatusShipped)

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := f.service.UpdateStatus(context.Background(), order.ID, UpdateStatusRequest{Status: "DELIVERED"}, admin)
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, int64(4000), f.store.ledger.Balance(customerID))
	require.Len(t, f.store.ledger.Entries(customerID), 1)
}

func TestCreate(t *testing.T) {
	t.Run("computes totals and publishes", func(t *testing.T) {
		f := newFixture(t)

		order, err := f.service.Create(context.Background(), customerID, CreateOrderRequest{
			Items: []CreateItemRequest{
				{ProductID: "SKU-1", Quantity: 2, UnitPrice: mustDecimal("45.25")},
				{ProductID: "SKU-2", Quantity: 1, UnitPrice: mustDecimal("40.00")},
			},
			ShippingCost:  mustDecimal("20.00"),
			PaymentMethod: "CASH_ON_DELIVERY",
		})

		require.NoError(t, err)
		require.True(t, order.Subtotal.Equal(mustDecimal("130.50")))
		require.True(t, order.Total.Equal(mustDecimal("150.50")))
		require.True(t, order.Items[0].Total.Equal(mustDecimal("90.50")))
		require.Equal(t, domain.OrderStatusPending, order.Status)
		require.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
		require.Equal(t, "ORD-000001", order.OrderNumber)
		require.Equal(t, 1, f.created.count())
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		item := CreateItemRequest{ProductID: "SKU-1", Quantity: 1, UnitPrice: mustDecimal("1")}

		tests := []struct {
			name string
			req  CreateOrderRequest
		}{
			{"no items", CreateOrderRequest{PaymentMethod: "CARD"}},
			{"zero quantity", CreateOrderRequest{Items: []CreateItemRequest{{ProductID: "SKU-1", UnitPrice: mustDecimal("1")}}, PaymentMethod: "CARD"}},
			{"negative price", CreateOrderRequest{Items: []CreateItemRequest{{ProductID: "SKU-1", Quantity: 1, UnitPrice: mustDecimal("-1")}}, PaymentMethod: "CARD"}},
			{"missing product", CreateOrderRequest{Items: []CreateItemRequest{{Quantity: 1}}, PaymentMethod: "CARD"}},
			{"negative shipping", CreateOrderRequest{Items: []CreateItemRequest{item}, ShippingCost: mustDecimal("-5"), PaymentMethod: "CARD"}},
			{"missing payment method", CreateOrderRequest{Items: []CreateItemRequest{item}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.service.Create(context.Background(), customerID, tt.req)
				require.ErrorIs(t, err, domain.ErrValidation)
			})
		}
		require.Zero(t, f.created.count())
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Create(context.Background(), "55555555-5555-5555-5555-555555555555", CreateOrderRequest{
			Items:         []CreateItemRequest{{ProductID: "SKU-1", Quantity: 1, UnitPrice: mustDecimal("1")}},
			PaymentMethod: "CARD",
		})
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestListAdmin_Pagination(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.store.seed(customerID, "10.00", domain.OrderStatusPending)
	}
	f.store.seed(customerID, "10.00", domain.OrderStatusDelivered)

	page, err := f.service.ListAdmin(context.Background(), AdminFilter{Status: domain.OrderStatusPending, Page: 1, Limit: 2})

	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.Equal(t, domain.Pagination{Total: 3, Page: 1, Limit: 2, TotalPages: 2}, page.Pagination)
}
