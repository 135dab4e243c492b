package allocations

import (
	"fmt"

	"github.com/freightline-erp/freightline/internal/shared"
)

// Domain errors for allocations. All wrap a taxonomy root from shared.
var (
	ErrAllocationNotFound = fmt.Errorf("%w: allocation", shared.ErrNotFound)

	// Validation errors.
	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be greater than zero", shared.ErrValidation)
	ErrPickExceedsAllocated = fmt.Errorf("%w: picked quantity exceeds allocated quantity", shared.ErrValidation)
	ErrLoadExceedsPicked    = fmt.Errorf("%w: loaded quantity exceeds picked quantity", shared.ErrValidation)
	ErrShipExceedsLoaded    = fmt.Errorf("%w: shipped quantity exceeds loaded quantity", shared.ErrValidation)
	ErrInvalidSplitQuantity = fmt.Errorf("%w: split quantity must be positive and below the allocated quantity", shared.ErrValidation)

	// Availability errors.
	ErrInsufficientQuantity = fmt.Errorf("%w: requested quantity exceeds unallocated stock", shared.ErrInsufficientQuantity)

	// Status transition errors.
	ErrCannotPick   = fmt.Errorf("%w: allocation cannot be picked in current status", shared.ErrInvalidStateTransition)
	ErrCannotLoad   = fmt.Errorf("%w: allocation cannot be loaded in current status", shared.ErrInvalidStateTransition)
	ErrCannotShip   = fmt.Errorf("%w: allocation cannot be shipped in current status", shared.ErrInvalidStateTransition)
	ErrCannotCancel = fmt.Errorf("%w: allocation is terminal and cannot be cancelled", shared.ErrInvalidStateTransition)
	ErrCannotSplit  = fmt.Errorf("%w: only an unpicked allocation can be split", shared.ErrInvalidStateTransition)
)
