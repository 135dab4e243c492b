package allocations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freightline-erp/freightline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for allocations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the allocations handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/pick", h.handlePick)
	r.Post("/{id}/load", h.handleLoad)
	r.Post("/{id}/ship", h.handleShip)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Post("/{id}/split", h.handleSplit)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateAllocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}
	req.IdempotencyKey = r.Header.Get("X-Idempotency-Key")

	alloc, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("create allocation failed", slog.Any("error", err), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("allocation created",
		slog.Int64("allocation_id", alloc.ID),
		slog.Int64("item_id", alloc.ItemID),
		slog.String("allocated_qty", alloc.AllocatedQty.String()))
	httpx.Data(w, http.StatusCreated, alloc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "item_id query parameter required"})
		return
	}
	allocs, err := h.service.ListByItem(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, allocs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.allocationID(w, r)
	if !ok {
		return
	}
	alloc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, alloc)
}

func (h *Handler) handlePick(w http.ResponseWriter, r *http.Request) {
	id, ok := h.allocationID(w, r)
	if !ok {
		return
	}
	var req PickRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}

	alloc, err := h.service.Pick(r.Context(), id, req)
	if err != nil {
		h.logger.Error("pick failed", slog.Any("error", err), slog.Int64("allocation_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, alloc)
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := h.allocationID(w, r)
	if !ok {
		return
	}
	var req LoadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}

	alloc, err := h.service.Load(r.Context(), id, req)
	if err != nil {
		h.logger.Error("load failed", slog.Any("error", err), slog.Int64("allocation_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, alloc)
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.allocationID(w, r)
	if !ok {
		return
	}
	var req ShipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}

	alloc, err := h.service.Ship(r.Context(), id, req)
	if err != nil {
		h.logger.Error("ship failed", slog.Any("error", err), slog.Int64("allocation_id", id))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("allocation shipped", slog.Int64("allocation_id", id), slog.String("shipped_qty", alloc.ShippedQty.String()))
	httpx.Data(w, http.StatusOK, alloc)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.allocationID(w, r)
	if !ok {
		return
	}
	alloc, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel failed", slog.Any("error", err), slog.Int64("allocation_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, alloc)
}

func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.allocationID(w, r)
	if !ok {
		return
	}
	var req SplitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, validationFields(err))
		return
	}

	result, err := h.service.Split(r.Context(), id, req)
	if err != nil {
		h.logger.Error("split failed", slog.Any("error", err), slog.Int64("allocation_id", id))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("allocation split",
		slog.Int64("allocation_id", id),
		slog.Int64("sibling_id", result.Sibling.ID))
	httpx.Data(w, http.StatusOK, result)
}

func (h *Handler) allocationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{Code: httpx.CodeValidation, Message: "invalid allocation id"})
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
