package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/fx"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
	"github.com/rethread-erp/rethread-erp/internal/shared"
)

// Handler wires HTTP endpoints for purchases and supplier payments.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validate}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.createPurchase)
	r.Get("/purchases", h.listPurchases)
	r.Get("/purchases/{id}", h.getPurchase)
	r.Post("/purchases/{id}/post", h.postPurchase)
	r.Post("/purchases/payments", h.paySupplier)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPurchaseNotFound), errors.Is(err, inventory.ErrItemNotFound):
		httpx.Error(w, http.StatusNotFound, err)
	case errors.Is(err, ErrAlreadyPosted):
		httpx.Error(w, http.StatusConflict, err)
	case errors.Is(err, ErrZeroWeight), errors.Is(err, ErrNoLines), errors.Is(err, ErrBadLineTag),
		errors.Is(err, fx.ErrInvalidRate), errors.Is(err, ledger.ErrMappingNotFound),
		errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Error(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("procurement request failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "PROCUREMENT.PURCHASE"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Error(w, http.StatusConflict, err)
				return
			}
			h.respondErr(w, err)
			return
		}
	}
	purchase, err := h.service.CreatePurchase(r.Context(), req, auth.ActorID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.ListPurchases(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchases)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) postPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	purchase, txn, err := h.service.PostPurchase(r.Context(), id, auth.ActorID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase": purchase, "transaction": txn})
}

func (h *Handler) paySupplier(w http.ResponseWriter, r *http.Request) {
	var req PaymentInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	req.ActorID = auth.ActorID(r.Context())
	txn, err := h.service.PaySupplier(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}
