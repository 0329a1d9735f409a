package fx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the exchange-rate table.
type Handler struct {
	logger   *slog.Logger
	source   *Source
	repo     Repository
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, source *Source, repo Repository, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, source: source, repo: repo, validate: validate}
}

// MountRoutes registers fx routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/fx/rates", h.listRates)
	r.Get("/fx/rates/{currency}", h.getRate)
	r.Put("/fx/rates", h.upsertRate)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var missing *MissingRateError
	switch {
	case errors.As(err, &missing):
		httpx.Error(w, http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidRate):
		httpx.Error(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("fx request failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.repo.ListRates(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rates)
}

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(chi.URLParam(r, "currency"))
	rate, err := h.source.Lookup(r.Context(), currency)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

type rateRequest struct {
	Currency string          `json:"currency" validate:"required,len=3"`
	Rate     decimal.Decimal `json:"rate"`
}

func (h *Handler) upsertRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if req.Rate.Sign() <= 0 {
		httpx.Error(w, http.StatusUnprocessableEntity, ErrInvalidRate)
		return
	}
	rate := Rate{
		Currency:  strings.ToUpper(req.Currency),
		Rate:      req.Rate,
		AsOf:      time.Now().UTC(),
		UpdatedBy: auth.ActorID(r.Context()),
	}
	if err := h.repo.UpsertRate(r.Context(), rate); err != nil {
		h.respondErr(w, err)
		return
	}
	if err := h.source.Invalidate(r.Context(), rate.Currency); err != nil {
		h.logger.Warn("fx cache invalidation failed", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, rate)
}
