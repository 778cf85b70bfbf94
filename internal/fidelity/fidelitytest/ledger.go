// Package fidelitytest provides an in-memory ledger for tests of code that
// posts to or reads from the fidelity ledger.
package fidelitytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/fidelity"
)

// Ledger implements fidelity.LedgerTx, fidelity.Transactor and
// fidelity.Reader over maps. InTx serializes callers and rolls back every
// write made by a failing callback.
type Ledger struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	entries []domain.HistoryEntry
	clock   time.Time

	// FailAppend, when set, is returned by the next AppendEntry call.
	FailAppend error
}

func NewLedger() *Ledger {
	return &Ledger{
		users: make(map[string]*domain.User),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (l *Ledger) AddUser(id string, balance int64) *domain.User {
	u := &domain.User{
		ID:             id,
		Email:          id + "@example.com",
		Role:           domain.RoleClient,
		FidelityPoints: balance,
		CreatedAt:      l.clock,
	}
	l.users[id] = u
	return u
}

func (l *Ledger) Balance(userID string) int64 {
	if u, ok := l.users[userID]; ok {
		return u.FidelityPoints
	}
	return 0
}

// Entries returns the user's history, oldest first.
func (l *Ledger) Entries(userID string) []domain.HistoryEntry {
	var out []domain.HistoryEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) EntrySum(userID string) int64 {
	var sum int64
	for _, e := range l.Entries(userID) {
		sum += e.Points
	}
	return sum
}

// Snapshot captures balances and history; calling the returned function
// restores them.
func (l *Ledger) Snapshot() (restore func()) {
	balances := make(map[string]int64, len(l.users))
	for id, u := range l.users {
		balances[id] = u.FidelityPoints
	}
	n := len(l.entries)
	return func() {
		for id, b := range balances {
			l.users[id].FidelityPoints = b
		}
		l.entries = l.entries[:n]
	}
}

func (l *Ledger) InTx(ctx context.Context, fn func(tx fidelity.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	restore := l.Snapshot()
	if err := fn(l); err != nil {
		restore()
		return err
	}
	return nil
}

func (l *Ledger) LockUser(ctx context.Context, userID string) (int64, error) {
	u, ok := l.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return u.FidelityPoints, nil
}

func (l *Ledger) AddPoints(ctx context.Context, userID string, delta int64) (bool, error) {
	u, ok := l.users[userID]
	if !ok || u.FidelityPoints+delta < 0 {
		return false, nil
	}
	u.FidelityPoints += delta
	return true, nil
}

func (l *Ledger) HasOrderEntry(ctx context.Context, orderID string, entryType domain.EntryType) (bool, error) {
	for _, e := range l.entries {
		if e.OrderID != nil && *e.OrderID == orderID && e.Type == entryType {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) AppendEntry(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := l.FailAppend; err != nil {
		l.FailAppend = nil
		return err
	}
	if entry.OrderID != nil && (entry.Type == domain.EntryEarnedPurchase || entry.Type == domain.EntryRefund) {
		if dup, _ := l.HasOrderEntry(ctx, *entry.OrderID, entry.Type); dup {
			return fmt.Errorf("%w: %s", fidelity.ErrDuplicateEntry, entry.Type)
		}
	}

	l.clock = l.clock.Add(time.Second)
	entry.ID = uuid.New().String()
	entry.CreatedAt = l.clock
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *Ledger) GetUser(ctx context.Context, id string) (*domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (l *Ledger) History(ctx context.Context, userID string, page, limit int) ([]domain.HistoryEntry, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.Entries(userID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, page, limit), len(all), nil
}

func (l *Ledger) ListBalances(ctx context.Context, search string, page, limit int) ([]domain.User, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	search = strings.ToLower(search)
	var all []domain.User
	for _, u := range l.users {
		if search == "" || strings.Contains(strings.ToLower(u.Email), search) {
			all = append(all, *u)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].FidelityPoints != all[j].FidelityPoints {
			return all[i].FidelityPoints > all[j].FidelityPoints
		}
		return all[i].ID < all[j].ID
	})
	return window(all, page, limit), len(all), nil
}

func window[T any](items []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
