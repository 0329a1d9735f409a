package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
)

// Handler wires token management endpoints. The plaintext secret is returned
// exactly once, on mint.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers token routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/tokens", h.mintToken)
	r.Post("/tokens/{id}/revoke", h.revokeToken)
}

type mintRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (h *Handler) mintToken(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	plaintext, token, err := h.service.Mint(r.Context(), req.Name, ActorID(r.Context()))
	if err != nil {
		h.logger.Error("mint token", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":    token.ID,
		"name":  token.Name,
		"token": plaintext,
	})
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			httpx.Error(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("revoke token", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "revoked": true})
}
