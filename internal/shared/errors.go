package shared

import "errors"

// Taxonomy roots. Domain packages wrap these with fmt.Errorf("%w: ...") so
// the HTTP layer can classify any error with errors.Is.
var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientQuantity indicates the requested quantity exceeds what is available at this stage.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrOverReceipt indicates a positive delta would push current quantity above the received quantity.
	ErrOverReceipt = errors.New("over receipt")
	// ErrInvalidStateTransition indicates the operation is not permitted in the current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConflict indicates a structural conflict, e.g. deleting an item with live allocations.
	ErrConflict = errors.New("conflict")
)

// UserSafeMessage returns err.Error() for classified domain errors and a
// generic message for everything else, so infrastructure details never leak.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientQuantity),
		errors.Is(err, ErrOverReceipt),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
