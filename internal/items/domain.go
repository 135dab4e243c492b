// Package items is the authoritative current-quantity bookkeeping for
// warehouse inventory items.
package items

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is one line of goods received into a warehouse receipt.
// CurrentQty is maintained alongside the movement ledger: at all times
// currentQty == initialQty + sum of ledger deltas, and
// 0 <= currentQty <= initialQty.
type InventoryItem struct {
	ID         int64           `json:"id"`
	ReceiptID  int64           `json:"receipt_id"`
	Commodity  string          `json:"commodity"`
	SKU        string          `json:"sku"`
	Unit       string          `json:"unit"`
	InitialQty decimal.Decimal `json:"initial_qty"`
	CurrentQty decimal.Decimal `json:"current_qty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Apply adds delta to the current quantity, enforcing the item bounds.
// The caller persists the mutated quantity and the matching ledger entry in
// the same transaction.
func (it *InventoryItem) Apply(delta decimal.Decimal) error {
	next := it.CurrentQty.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientQuantity
	}
	if next.GreaterThan(it.InitialQty) {
		return ErrOverReceipt
	}
	it.CurrentQty = next
	return nil
}

// FullyConsumed reports whether every received unit has left the warehouse.
func (it InventoryItem) FullyConsumed() bool {
	return it.CurrentQty.IsZero()
}
