package allocations

import "github.com/shopspring/decimal"

// CreateAllocationRequest reserves quantity of an item for a shipment.
type CreateAllocationRequest struct {
	ItemID       int64           `json:"item_id" validate:"required,gt=0"`
	ShipmentID   int64           `json:"shipment_id" validate:"required,gt=0"`
	ContainerID  *int64          `json:"container_id,omitempty" validate:"omitempty,gt=0"`
	AllocatedQty decimal.Decimal `json:"allocated_qty" validate:"required"`

	// IdempotencyKey comes from the X-Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-"`
}

// PickRequest records the physically picked quantity.
type PickRequest struct {
	PickedQty decimal.Decimal `json:"picked_qty" validate:"required"`
}

// LoadRequest records the loaded quantity and optionally moves the
// allocation to a different container.
type LoadRequest struct {
	LoadedQty   decimal.Decimal `json:"loaded_qty" validate:"required"`
	ContainerID *int64          `json:"container_id,omitempty" validate:"omitempty,gt=0"`
}

// ShipRequest records the shipped quantity and closes the allocation.
type ShipRequest struct {
	ShippedQty decimal.Decimal `json:"shipped_qty" validate:"required"`
}

// SplitRequest carves a sibling reservation out of an unpicked allocation.
type SplitRequest struct {
	SplitQty       decimal.Decimal `json:"split_qty" validate:"required"`
	NewContainerID *int64          `json:"new_container_id,omitempty" validate:"omitempty,gt=0"`
}

// SplitResult returns both halves of a split.
type SplitResult struct {
	Original Allocation `json:"original"`
	Sibling  Allocation `json:"sibling"`
}
