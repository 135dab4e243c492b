package receipts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freightline-erp/freightline/internal/platform/httpx"
)

// CreateReceiptRequest is the payload for opening a new intake record.
type CreateReceiptRequest struct {
	Code string `json:"code" validate:"max=64"`
}

// Handler wires HTTP endpoints for warehouse receipts.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the receipts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/refresh", h.handleRefresh)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateReceiptRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "request validation failed"})
			return
		}
	}

	receipt, err := h.service.Create(r.Context(), req.Code)
	if err != nil {
		h.logger.Error("create receipt failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("receipt created", slog.Int64("receipt_id", receipt.ID), slog.String("code", receipt.Code))
	httpx.Data(w, http.StatusCreated, receipt)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.receiptID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, detail)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := h.receiptID(w, r)
	if !ok {
		return
	}
	status, err := h.service.Refresh(r.Context(), id)
	if err != nil {
		h.logger.Error("refresh receipt failed", slog.Any("error", err), slog.Int64("receipt_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, map[string]any{"receipt_id": id, "status": status})
}

func (h *Handler) receiptID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "invalid receipt id"})
		return 0, false
	}
	return id, true
}
