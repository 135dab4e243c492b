package items

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/platform/httpx"
)

// MovementLister exposes the ledger's audit listing.
type MovementLister interface {
	ListByItem(ctx context.Context, itemID int64) ([]ledger.Movement, error)
}

// Handler wires HTTP endpoints for inventory items.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	movements MovementLister
	validate  *validator.Validate
}

// NewHandler constructs the items handler.
func NewHandler(logger *slog.Logger, service *Service, movements MovementLister) *Handler {
	return &Handler{logger: logger, service: service, movements: movements, validate: validator.New()}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/adjust", h.handleAdjust)
	r.Get("/{id}/movements", h.handleMovements)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}

	item, err := h.service.Create(r.Context(), CreateInput{
		ReceiptID:  req.ReceiptID,
		Commodity:  req.Commodity,
		SKU:        req.SKU,
		Unit:       req.Unit,
		InitialQty: req.InitialQty,
	})
	if err != nil {
		h.logger.Error("create item failed", slog.Any("error", err), slog.Int64("receipt_id", req.ReceiptID))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("item created", slog.Int64("item_id", item.ID), slog.String("sku", item.SKU))
	httpx.Data(w, http.StatusCreated, item)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	receiptID, err := strconv.ParseInt(r.URL.Query().Get("receipt_id"), 10, 64)
	if err != nil || receiptID <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "receipt_id query parameter required"})
		return
	}
	list, err := h.service.ListByReceipt(r.Context(), receiptID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, item)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, 0); err != nil {
		h.logger.Error("delete item failed", slog.Any("error", err), slog.Int64("item_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req AdjustItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}

	item, err := h.service.Adjust(r.Context(), AdjustInput{ItemID: id, Delta: req.Delta, Reason: req.Reason})
	if err != nil {
		h.logger.Error("adjust item failed", slog.Any("error", err), slog.Int64("item_id", id))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("item adjusted", slog.Int64("item_id", id), slog.String("delta", req.Delta.String()))
	httpx.Data(w, http.StatusOK, item)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.movements.ListByItem(r.Context(), id)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err), slog.Int64("item_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, movements)
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "invalid item id"})
		return 0, false
	}
	return id, true
}

func validationFields(err error) map[string]any {
	fields := map[string]any{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return fields
}
