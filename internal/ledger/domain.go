// Package ledger is the append-only movement log. Every quantity change
// against an inventory item lands here exactly once; rows are never updated
// or deleted, so an item's history always reconciles to its current quantity.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freightline-erp/freightline/internal/shared"
)

// RefType tags a movement with the kind of record that caused it.
type RefType string

const (
	RefTypeReceipt    RefType = "RECEIPT"
	RefTypeAllocation RefType = "ALLOCATION"
	RefTypePick       RefType = "PICK"
	RefTypeLoad       RefType = "LOAD"
	RefTypeShip       RefType = "SHIP"
	RefTypeAdjust     RefType = "ADJUST"
)

// IsValid checks if the ref type is one of the known kinds.
func (t RefType) IsValid() bool {
	switch t {
	case RefTypeReceipt, RefTypeAllocation, RefTypePick, RefTypeLoad, RefTypeShip, RefTypeAdjust:
		return true
	default:
		return false
	}
}

// Movement is one immutable quantity change against an inventory item.
// QtyDelta is signed: positive is stock in, negative is stock out.
type Movement struct {
	ID        int64           `json:"id"`
	ItemID    int64           `json:"item_id"`
	RefType   RefType         `json:"ref_type"`
	RefID     int64           `json:"ref_id"`
	QtyDelta  decimal.Decimal `json:"qty_delta"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks the structural rules for a new movement. Sign is not
// restricted; non-negativity of the resulting balance is the item store's
// responsibility.
func (m Movement) Validate() error {
	if m.ItemID <= 0 {
		return fmt.Errorf("%w: movement requires an item id", shared.ErrValidation)
	}
	if !m.RefType.IsValid() {
		return fmt.Errorf("%w: unknown ref type %q", shared.ErrValidation, string(m.RefType))
	}
	if m.QtyDelta.IsZero() {
		return fmt.Errorf("%w: movement delta must be non-zero", shared.ErrValidation)
	}
	return nil
}
