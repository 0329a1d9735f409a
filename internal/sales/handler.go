package sales

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

// Handler wires HTTP endpoints for invoices, reversals and receipts.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validate}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/post", h.postInvoice)
	r.Post("/invoices/{id}/reverse", h.reverseInvoice)
	r.Post("/invoices/{id}/receipts", h.recordReceipt)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, inventory.ErrItemNotFound):
		httpx.Error(w, http.StatusNotFound, err)
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ledger.ErrAlreadyReversed):
		httpx.Error(w, http.StatusConflict, err)
	case errors.Is(err, ErrNotPosted), errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidPrice),
		errors.Is(err, fx.ErrInvalidRate), errors.Is(err, ledger.ErrMappingNotFound),
		errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Error(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("sales request failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "SALES.INVOICE"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Error(w, http.StatusConflict, err)
				return
			}
			h.respondErr(w, err)
			return
		}
	}
	invoice, err := h.service.CreateInvoice(r.Context(), req, auth.ActorID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	invoices, pagination, err := h.service.ListInvoices(r.Context(), page, perPage)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices, "pagination": pagination})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	invoice, txn, err := h.service.PostInvoice(r.Context(), id, auth.ActorID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": invoice, "transaction": txn})
}

type reverseInvoiceRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) reverseInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	var req reverseInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	invoice, reversal, err := h.service.ReverseInvoice(r.Context(), id, req.Reason, auth.ActorID(r.Context()))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": invoice, "reversal": reversal})
}

func (h *Handler) recordReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	var req ReceiptInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	req.InvoiceID = id
	req.ActorID = auth.ActorID(r.Context())
	txn, err := h.service.RecordReceipt(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
