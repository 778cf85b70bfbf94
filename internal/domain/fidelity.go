package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryEarnedPurchase EntryType = "EARNED_PURCHASE"
	EntryRefund         EntryType = "REFUND"
	EntryManualAdd      EntryType = "MANUAL_ADD"
	EntryManualDeduct   EntryType = "MANUAL_DEDUCT"
	EntryRedeemed       EntryType = "REDEEMED"
)

// HistoryEntry is one immutable row of a user's fidelity ledger.
// The user's balance always equals the sum of Points over their entries.
type HistoryEntry struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	OrderID     *string     `json:"orderId,omitempty"`
	Points      int64       `json:"points"`
	Type        EntryType   `json:"type"`
	Description string      `json:"description"`
	Reference   *string     `json:"reference,omitempty"`
	CreatedBy   *string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	Order       *EntryOrder `json:"order,omitempty"`
}

// EntryOrder carries the display fields of the order an entry came from.
type EntryOrder struct {
	OrderNumber string          `json:"orderNumber"`
	Total       decimal.Decimal `json:"total"`
}
