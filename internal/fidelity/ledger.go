package fidelity

import (
	"context"
	"fmt"
	"strings"

	"github.com/joao-fontenele/parashop/internal/domain"
)

// LedgerTx is the part of an open transaction the ledger writes through.
type LedgerTx interface {
	// LockUser returns the current balance and holds the user row until the
	// transaction ends.
	LockUser(ctx context.Context, userID string) (int64, error)
	// AddPoints applies delta as a single statement. A negative delta is only
	// applied when the balance covers it; ok is false when nothing changed.
	AddPoints(ctx context.Context, userID string, delta int64) (ok bool, err error)
	HasOrderEntry(ctx context.Context, orderID string, entryType domain.EntryType) (bool, error)
	AppendEntry(ctx context.Context, entry *domain.HistoryEntry) error
}

type Posting struct {
	Effect Effect
	Points int64
	// Skipped is set when the effect was due but nothing was written.
	Skipped bool
	Reason  string
	Entry   *domain.HistoryEntry
}

func (p Posting) Awarded() int64 {
	if p.Effect == EffectAward && !p.Skipped {
		return p.Points
	}
	return 0
}

func (p Posting) Refunded() int64 {
	if p.Effect == EffectRefund && !p.Skipped {
		return p.Points
	}
	return 0
}

const (
	SkipAlreadyAwarded     = "already awarded"
	SkipAlreadyRefunded    = "already refunded"
	SkipInsufficientPoints = "insufficient balance"
	SkipZeroPoints         = "zero points"
)

// Post writes the award or refund implied by moving order from previous to
// next. It must run inside the transaction that persists the status change;
// any error it returns must abort that transaction.
func Post(ctx context.Context, tx LedgerTx, order *domain.Order, previous, next domain.OrderStatus) (Posting, error) {
	effect := Decide(previous, next)
	posting := Posting{Effect: effect}
	if effect == EffectNone {
		return posting, nil
	}

	posting.Points = PointsFor(order.Total)
	if posting.Points == 0 {
		posting.Skipped, posting.Reason = true, SkipZeroPoints
		return posting, nil
	}

	switch effect {
	case EffectAward:
		return award(ctx, tx, order, posting)
	case EffectRefund:
		return refund(ctx, tx, order, posting)
	}
	return posting, nil
}

func award(ctx context.Context, tx LedgerTx, order *domain.Order, posting Posting) (Posting, error) {
	exists, err := tx.HasOrderEntry(ctx, order.ID, domain.EntryEarnedPurchase)
	if err != nil {
		return posting, fmt.Errorf("check earned entry: %w", err)
	}
	if exists {
		posting.Skipped, posting.Reason = true, SkipAlreadyAwarded
		return posting, nil
	}

	ok, err := tx.AddPoints(ctx, order.UserID, posting.Points)
	if err != nil {
		return posting, fmt.Errorf("increment balance: %w", err)
	}
	if !ok {
		return posting, fmt.Errorf("award order %s: %w", order.OrderNumber, domain.ErrUserNotFound)
	}

	entry := orderEntry(order, domain.EntryEarnedPurchase, posting.Points,
		"Points gagnés pour la commande #"+order.OrderNumber)
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return posting, fmt.Errorf("append earned entry: %w", err)
	}
	posting.Entry = entry
	return posting, nil
}

func refund(ctx context.Context, tx LedgerTx, order *domain.Order, posting Posting) (Posting, error) {
	exists, err := tx.HasOrderEntry(ctx, order.ID, domain.EntryRefund)
	if err != nil {
		return posting, fmt.Errorf("check refund entry: %w", err)
	}
	if exists {
		posting.Skipped, posting.Reason = true, SkipAlreadyRefunded
		return posting, nil
	}

	ok, err := tx.AddPoints(ctx, order.UserID, -posting.Points)
	if err != nil {
		return posting, fmt.Errorf("decrement balance: %w", err)
	}
	if !ok {
		// The status change still goes through; the points stay with the user.
		posting.Skipped, posting.Reason = true, SkipInsufficientPoints
		return posting, nil
	}

	entry := orderEntry(order, domain.EntryRefund, -posting.Points,
		"Points remboursés pour la commande annulée #"+order.OrderNumber)
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return posting, fmt.Errorf("append refund entry: %w", err)
	}
	posting.Entry = entry
	return posting, nil
}

func orderEntry(order *domain.Order, entryType domain.EntryType, points int64, description string) *domain.HistoryEntry {
	orderID := order.ID
	reference := order.OrderNumber
	return &domain.HistoryEntry{
		UserID:      order.UserID,
		OrderID:     &orderID,
		Points:      points,
		Type:        entryType,
		Description: description,
		Reference:   &reference,
	}
}

type Adjustment struct {
	UserID      string `json:"userId"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
}

func (a Adjustment) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if a.Points == 0 {
		return fmt.Errorf("%w: points must be non-zero", domain.ErrValidation)
	}
	if strings.TrimSpace(a.Description) == "" {
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	return nil
}

// Adjust posts a manual credit or debit on behalf of actorID. A debit that
// would take the balance below zero is rejected.
func Adjust(ctx context.Context, tx LedgerTx, adj Adjustment, actorID string) (*domain.HistoryEntry, int64, error) {
	if err := adj.Validate(); err != nil {
		return nil, 0, err
	}

	balance, err := tx.LockUser(ctx, adj.UserID)
	if err != nil {
		return nil, 0, err
	}
	if balance+adj.Points < 0 {
		return nil, balance, domain.ErrInsufficientPoints
	}

	ok, err := tx.AddPoints(ctx, adj.UserID, adj.Points)
	if err != nil {
		return nil, balance, fmt.Errorf("apply adjustment: %w", err)
	}
	if !ok {
		return nil, balance, domain.ErrInsufficientPoints
	}

	entryType := domain.EntryManualAdd
	if adj.Points < 0 {
		entryType = domain.EntryManualDeduct
	}
	entry := &domain.HistoryEntry{
		UserID:      adj.UserID,
		Points:      adj.Points,
		Type:        entryType,
		Description: adj.Description,
	}
	if adj.Reference != "" {
		ref := adj.Reference
		entry.Reference = &ref
	}
	if actorID != "" {
		by := actorID
		entry.CreatedBy = &by
	}
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return nil, balance, fmt.Errorf("append adjustment entry: %w", err)
	}
	return entry, balance + adj.Points, nil
}
