package httpx

import (
	"errors"
	"net/http"

	"github.com/freightline-erp/freightline/internal/shared"
)

// Stable error codes surfaced to API clients.
const (
	CodeValidation             = "VALIDATION"
	CodeNotFound               = "NOT_FOUND"
	CodeInsufficientQuantity   = "INSUFFICIENT_QUANTITY"
	CodeOverReceipt            = "OVER_RECEIPT"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeConflict               = "CONFLICT"
	CodeInternal               = "INTERNAL"
)

// RespondError classifies err against the shared taxonomy and writes the
// matching error envelope. Unclassified errors surface as 500 INTERNAL with
// a generic message.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: shared.UserSafeMessage(err)})
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: shared.UserSafeMessage(err)})
	case errors.Is(err, shared.ErrInsufficientQuantity):
		Error(w, http.StatusConflict, ErrorBody{Code: CodeInsufficientQuantity, Message: shared.UserSafeMessage(err)})
	case errors.Is(err, shared.ErrOverReceipt):
		Error(w, http.StatusConflict, ErrorBody{Code: CodeOverReceipt, Message: shared.UserSafeMessage(err)})
	case errors.Is(err, shared.ErrInvalidStateTransition):
		Error(w, http.StatusConflict, ErrorBody{Code: CodeInvalidStateTransition, Message: shared.UserSafeMessage(err)})
	case errors.Is(err, shared.ErrConflict):
		Error(w, http.StatusConflict, ErrorBody{Code: CodeConflict, Message: shared.UserSafeMessage(err)})
	default:
		Error(w, http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: shared.UserSafeMessage(err)})
	}
}

// RespondValidation reports per-field validation failures from the DTO layer.
func RespondValidation(w http.ResponseWriter, fields map[string]any) {
	Error(w, http.StatusBadRequest, ErrorBody{
		Code:    CodeValidation,
		Message: "request validation failed",
		Details: fields,
	})
}
