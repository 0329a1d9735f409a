package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for items, stock cards and adjustments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.createItem)
	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)
	r.Get("/items/{id}/movements", h.listMovements)
	r.Post("/inventory/adjustments", h.postAdjustment)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Error(w, http.StatusNotFound, err)
	case errors.Is(err, ErrDuplicateCode):
		httpx.Error(w, http.StatusConflict, err)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInsufficientStock):
		httpx.Error(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	filter := MovementFilter{ItemID: id}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse(time.RFC3339, v); err != nil {
			httpx.Error(w, http.StatusBadRequest, err)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = time.Parse(time.RFC3339, v); err != nil {
			httpx.Error(w, http.StatusBadRequest, err)
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			httpx.Error(w, http.StatusBadRequest, err)
			return
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type adjustmentRequest struct {
	ItemID   int64           `json:"item_id" validate:"required"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	WriteOff bool            `json:"write_off"`
	Reason   string          `json:"reason" validate:"required,max=500"`
	Override bool            `json:"override"`
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	item, txn, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ItemID:   req.ItemID,
		Qty:      req.Qty,
		UnitCost: req.UnitCost,
		WriteOff: req.WriteOff,
		Reason:   req.Reason,
		ActorID:  auth.ActorID(r.Context()),
		Override: req.Override,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"item": item, "transaction": txn})
}
