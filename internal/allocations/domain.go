// Package allocations governs the lifecycle of stock reservations against
// inventory items. An allocation is a reservation overlay: it holds quantity
// against an item without moving stock, and the item's current quantity is
// only reduced once, at ship time.
package allocations

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of an allocation.
type Status string

const (
	StatusAllocated Status = "ALLOCATED" // Reservation created, stock untouched
	StatusPicked    Status = "PICKED"    // Physically picked in the warehouse
	StatusLoaded    Status = "LOADED"    // Loaded into a container
	StatusShipped   Status = "SHIPPED"   // Stock deducted, terminal
	StatusCancelled Status = "CANCELLED" // Reservation released, terminal
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusAllocated, StatusPicked, StatusLoaded, StatusShipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the allocation accepts further mutation.
func (s Status) IsTerminal() bool {
	return s == StatusShipped || s == StatusCancelled
}

// CanPick checks if the allocation can be picked.
func (s Status) CanPick() bool {
	return s == StatusAllocated || s == StatusPicked
}

// CanLoad checks if the allocation can be loaded.
func (s Status) CanLoad() bool {
	return s == StatusPicked || s == StatusLoaded
}

// CanShip checks if the allocation can be shipped.
func (s Status) CanShip() bool {
	return s == StatusLoaded
}

// CanCancel checks if the allocation can be cancelled.
func (s Status) CanCancel() bool {
	return !s.IsTerminal()
}

// CanSplit checks if the allocation can be split.
func (s Status) CanSplit() bool {
	return s == StatusAllocated
}

// Allocation reserves quantity of one inventory item for one shipment.
// Stage quantities are monotone: shippedQty <= loadedQty <= pickedQty
// <= allocatedQty. Terminal rows are retained for audit, never deleted.
type Allocation struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	ShipmentID   int64           `json:"shipment_id"`
	ContainerID  *int64          `json:"container_id,omitempty"`
	AllocatedQty decimal.Decimal `json:"allocated_qty"`
	PickedQty    decimal.Decimal `json:"picked_qty"`
	LoadedQty    decimal.Decimal `json:"loaded_qty"`
	ShippedQty   decimal.Decimal `json:"shipped_qty"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
