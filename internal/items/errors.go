package items

import (
	"fmt"

	"github.com/freightline-erp/freightline/internal/shared"
)

// Domain errors for inventory items. All wrap a taxonomy root from shared.
var (
	ErrItemNotFound    = fmt.Errorf("%w: inventory item", shared.ErrNotFound)
	ErrReceiptNotFound = fmt.Errorf("%w: warehouse receipt", shared.ErrNotFound)

	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be greater than zero", shared.ErrValidation)
	ErrZeroDelta       = fmt.Errorf("%w: adjustment delta must be non-zero", shared.ErrValidation)
	ErrMissingFields   = fmt.Errorf("%w: commodity, sku and unit are required", shared.ErrValidation)

	ErrInsufficientQuantity = fmt.Errorf("%w: delta would drive current quantity negative", shared.ErrInsufficientQuantity)
	ErrOverReceipt          = fmt.Errorf("%w: delta would exceed received quantity", shared.ErrOverReceipt)

	ErrItemConsumed  = fmt.Errorf("%w: item has shipped quantity and cannot be deleted", shared.ErrConflict)
	ErrItemAllocated = fmt.Errorf("%w: item has open allocations and cannot be deleted", shared.ErrConflict)
)
