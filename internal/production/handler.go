package production

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for bale-opening runs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/production-runs", h.postRun)
	r.Get("/production-runs", h.listRuns)
	r.Get("/production-runs/{id}", h.getRun)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, inventory.ErrItemNotFound):
		httpx.Error(w, http.StatusNotFound, err)
	case errors.Is(err, ErrZeroWeight), errors.Is(err, ErrNoOutputs),
		errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, ledger.ErrMappingNotFound):
		httpx.Error(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("production request failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) postRun(w http.ResponseWriter, r *http.Request) {
	var req RunInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	req.ActorID = auth.ActorID(r.Context())
	run, err := h.service.PostRun(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}
