package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/fidelity"
	"github.com/joao-fontenele/parashop/internal/store"
)

var tracer = otel.Tracer("parashop/orders")

// StatusTx is an open transaction that can lock and rewrite an order and
// post to the fidelity ledger.
type StatusTx interface {
	fidelity.LedgerTx
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	SaveStatus(ctx context.Context, order *domain.Order) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx StatusTx) error) error
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAdmin(ctx context.Context, filter AdminFilter) ([]domain.Order, int, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	store         Store
	createdEvents Publisher
	statusEvents  Publisher
	metrics       *fidelity.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Service)

func WithPublishers(created, statusChanged Publisher) Option {
	return func(s *Service) {
		s.createdEvents = created
		s.statusEvents = statusChanged
	}
}

func WithMetrics(m *fidelity.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UpdateStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

type TransitionResult struct {
	Order          *domain.Order
	PreviousStatus domain.OrderStatus
	Posting        fidelity.Posting
}

// UpdateStatus changes an order's status and payment status, posting any
// fidelity award or refund in the same transaction. The order row stays
// locked from the read of the previous status until commit, so concurrent
// updates of one order are serialized.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, req UpdateStatusRequest, actor domain.Actor) (*TransitionResult, error) {
	var (
		status        domain.OrderStatus
		paymentStatus domain.PaymentStatus
		err           error
	)
	if req.Status == "" && req.PaymentStatus == "" {
		return nil, fmt.Errorf("%w: status or paymentStatus is required", domain.ErrValidation)
	}
	if req.Status != "" {
		if status, err = domain.ParseOrderStatus(req.Status); err != nil {
			return nil, err
		}
	}
	if req.PaymentStatus != "" {
		if paymentStatus, err = domain.ParsePaymentStatus(req.PaymentStatus); err != nil {
			return nil, err
		}
	}

	ctx, span := tracer.Start(ctx, "orders.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status.requested", string(status)),
		attribute.String("actor.id", actor.UserID),
	))
	defer span.End()

	var result TransitionResult
	err = s.store.InTx(ctx, func(tx StatusTx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		result.PreviousStatus = order.Status
		s.apply(order, status, paymentStatus)

		if err := tx.SaveStatus(ctx, order); err != nil {
			return fmt.Errorf("save order status: %w", err)
		}

		next := order.Status
		posting, err := fidelity.Post(ctx, tx, order, result.PreviousStatus, next)
		if err != nil {
			return fmt.Errorf("post fidelity points: %w", err)
		}

		if order.Customer != nil {
			order.Customer.FidelityPoints += posting.Awarded() - posting.Refunded()
		}
		result.Order = order
		result.Posting = posting
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		s.logger.Error("order status transition rolled back",
			"error", err, "order_id", orderID, "requested_status", status,
			"requested_payment_status", paymentStatus, "actor_id", actor.UserID)
		return nil, err
	}

	posting := result.Posting
	span.SetAttributes(
		attribute.String("fidelity.effect", posting.Effect.String()),
		attribute.Int64("fidelity.points", posting.Points),
	)
	s.metrics.RecordPosting(ctx, posting)

	if posting.Skipped {
		s.logger.Warn("fidelity posting skipped",
			"order_id", orderID, "effect", posting.Effect.String(), "points", posting.Points, "reason", posting.Reason)
	}

	s.logger.Info("order status updated",
		"order_id", orderID,
		"previous_status", result.PreviousStatus,
		"status", result.Order.Status,
		"points_awarded", posting.Awarded(),
		"points_refunded", posting.Refunded(),
	)

	s.publishStatusChanged(ctx, &result)
	return &result, nil
}

// apply sets the requested fields. Shipped and delivered timestamps are set
// once and never re-stamped.
func (s *Service) apply(order *domain.Order, status domain.OrderStatus, paymentStatus domain.PaymentStatus) {
	now := s.now()
	if status != "" {
		order.Status = status
	}
	if paymentStatus != "" {
		order.PaymentStatus = paymentStatus
	}
	if status == domain.OrderStatusShipped && order.ShippedAt == nil {
		order.ShippedAt = &now
	}
	if status == domain.OrderStatusDelivered && order.DeliveredAt == nil {
		order.DeliveredAt = &now
	}
	order.UpdatedAt = now
}

func (s *Service) publishStatusChanged(ctx context.Context, result *TransitionResult) {
	if s.statusEvents == nil || (result.PreviousStatus == result.Order.Status && result.Posting.Effect == fidelity.EffectNone) {
		return
	}

	order := result.Order
	event := domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: result.PreviousStatus,
		Status:         order.Status,
		PointsAwarded:  result.Posting.Awarded(),
		PointsRefunded: result.Posting.Refunded(),
		Timestamp:      order.UpdatedAt,
	}
	if order.Customer != nil {
		event.Email = order.Customer.Email
	}

	if err := s.statusEvents.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order status changed event", "error", err, "order_id", order.ID)
	}
}

type CreateItemRequest struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CreateOrderRequest struct {
	Items         []CreateItemRequest `json:"items"`
	ShippingCost  decimal.Decimal     `json:"shippingCost"`
	PaymentMethod string              `json:"paymentMethod"`
	Notes         string              `json:"notes"`
}

func (r CreateOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: order must have at least one item", domain.ErrValidation)
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d: productId is required", domain.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", domain.ErrValidation, i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: unitPrice must not be negative", domain.ErrValidation, i)
		}
	}
	if r.ShippingCost.IsNegative() {
		return fmt.Errorf("%w: shippingCost must not be negative", domain.ErrValidation)
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		return fmt.Errorf("%w: paymentMethod is required", domain.ErrValidation)
	}
	return nil
}

// Create places a PENDING order for userID. Totals are computed here rather
// than trusted from the client.
func (s *Service) Create(ctx context.Context, userID string, req CreateOrderRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: req.PaymentMethod,
		ShippingCost:  req.ShippingCost,
		Notes:         req.Notes,
		CreatedAt:     s.now(),
	}

	subtotal := decimal.Zero
	for _, item := range req.Items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     line,
		})
	}
	order.Subtotal = subtotal
	order.Total = subtotal.Add(req.ShippingCost)

	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	if s.createdEvents != nil {
		event := domain.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			Items:       order.Items,
			Timestamp:   order.CreatedAt,
		}
		if err := s.createdEvents.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "user_id", userID)
	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.ListForUser(ctx, userID)
}

type OrderPage struct {
	Orders     []domain.Order    `json:"orders"`
	Pagination domain.Pagination `json:"pagination"`
}

func (s *Service) ListAdmin(ctx context.Context, filter AdminFilter) (*OrderPage, error) {
	orders, total, err := s.store.ListAdmin(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: orders, Pagination: store.Paginate(total, filter.Page, filter.Limit)}, nil
}
