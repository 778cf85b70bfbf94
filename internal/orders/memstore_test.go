package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/fidelity/fidelitytest"
	"github.com/joao-fontenele/parashop/internal/store"
)

// memStore keeps orders in memory and shares the fidelity ledger fake so a
// failing transaction can be rolled back across both.
type memStore struct {
	mu       sync.Mutex
	ledger   *fidelitytest.Ledger
	orders   map[string]*domain.Order
	seq      int
	failSave error
}

func newMemStore() *memStore {
	return &memStore{
		ledger: fidelitytest.NewLedger(),
		orders: make(map[string]*domain.Order),
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.Customer != nil {
		c := *o.Customer
		cp.Customer = &c
	}
	return &cp
}

// seed inserts an order in the given status for userID.
func (s *memStore) seed(userID, total string, status domain.OrderStatus) *domain.Order {
	s.seq++
	o := &domain.Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		OrderNumber:   fmt.Sprintf("ORD-%06d", s.seq),
		Status:        status,
		PaymentStatus: domain.PaymentStatusPending,
		Total:         mustDecimal(total),
		Subtotal:      mustDecimal(total),
		Customer:      &domain.OrderCustomer{Email: userID + "@example.com"},
	}
	s.orders[o.ID] = o
	return cloneOrder(o)
}

func (s *memStore) order(id string) *domain.Order {
	return cloneOrder(s.orders[id])
}

type memTx struct {
	*fidelitytest.Ledger
	store *memStore
}

func (t memTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, ok := t.store.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := cloneOrder(o)
	if cp.Customer != nil {
		cp.Customer.FidelityPoints = t.Balance(cp.UserID)
	}
	return cp, nil
}

func (t memTx) SaveStatus(ctx context.Context, order *domain.Order) error {
	if err := t.store.failSave; err != nil {
		return err
	}
	t.store.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(tx StatusTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	restoreLedger := s.ledger.Snapshot()
	saved := make(map[string]*domain.Order, len(s.orders))
	for id, o := range s.orders {
		saved[id] = cloneOrder(o)
	}

	if err := fn(memTx{Ledger: s.ledger, store: s}); err != nil {
		restoreLedger()
		s.orders = saved
		return err
	}
	return nil
}

func (s *memStore) Create(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, _ := s.ledger.GetUser(ctx, order.UserID); u == nil {
		return domain.ErrUserNotFound
	}
	s.seq++
	order.ID = uuid.New().String()
	order.OrderNumber = fmt.Sprintf("ORD-%06d", s.seq)
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (s *memStore) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })
	return out, nil
}

func (s *memStore) ListAdmin(ctx context.Context, filter AdminFilter) ([]domain.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Order{}
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })

	_, limit, offset := store.Page(filter.Page, filter.Limit)
	total := len(out)
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var errBoom = errors.New("boom")
