// Package receipts derives a warehouse receipt's status from the aggregate
// state of its items and their allocations. Status is a materialized view:
// it is only ever written through Refresh, never patched ad hoc.
package receipts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/shared"
)

// Status is the derived lifecycle of a warehouse receipt.
type Status string

const (
	StatusReceived Status = "RECEIVED"
	StatusPartial  Status = "PARTIAL"
	StatusShipped  Status = "SHIPPED"
)

// WarehouseReceipt is a warehouse intake record aggregating inventory items.
type WarehouseReceipt struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Detail is a receipt together with its items.
type Detail struct {
	WarehouseReceipt
	Items []items.InventoryItem `json:"items"`
}

// AllocationState is the slice of an allocation the aggregator needs.
type AllocationState struct {
	Status     string
	ShippedQty decimal.Decimal
}

// ItemState is the slice of an item the aggregator needs.
type ItemState struct {
	ItemID      int64
	InitialQty  decimal.Decimal
	CurrentQty  decimal.Decimal
	Allocations []AllocationState
}

// Rollup is everything Compute needs for one receipt.
type Rollup struct {
	ReceiptID int64
	Current   Status
	Items     []ItemState
}

// ErrReceiptNotFound indicates the receipt row does not exist.
var ErrReceiptNotFound = fmt.Errorf("%w: warehouse receipt", shared.ErrNotFound)

// Compute derives the receipt status. SHIPPED when every item is fully
// consumed; PARTIAL when some stock has shipped (by item quantity or by a
// shipped allocation) but not all; RECEIVED otherwise. Pure and idempotent.
func Compute(r Rollup) Status {
	if len(r.Items) == 0 {
		return StatusReceived
	}
	allConsumed := true
	anyShipped := false
	for _, it := range r.Items {
		if !it.CurrentQty.IsZero() {
			allConsumed = false
		}
		if it.CurrentQty.LessThan(it.InitialQty) {
			anyShipped = true
		}
		for _, a := range it.Allocations {
			if a.Status == "SHIPPED" && a.ShippedQty.IsPositive() {
				anyShipped = true
			}
		}
	}
	switch {
	case allConsumed:
		return StatusShipped
	case anyShipped:
		return StatusPartial
	default:
		return StatusReceived
	}
}
