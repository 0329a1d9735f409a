package report

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

// Handler serves ledger report exports.
type Handler struct {
	logger    *slog.Logger
	ledger    *ledger.Service
	formatter *Formatter
}

// NewHandler creates a report handler.
func NewHandler(logger *slog.Logger, ledgerService *ledger.Service, formatter *Formatter) *Handler {
	return &Handler{logger: logger, ledger: ledgerService, formatter: formatter}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance.txt", h.trialBalanceText)
	r.Get("/reports/trial-balance.csv", h.trialBalanceCSV)
}

func (h *Handler) trialBalanceText(w http.ResponseWriter, r *http.Request) {
	tb, err := h.ledger.TrialBalance(r.Context())
	if err != nil {
		h.logger.Error("trial balance export", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.formatter.TrialBalanceText(tb)))
}

func (h *Handler) trialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	tb, err := h.ledger.TrialBalance(r.Context())
	if err != nil {
		h.logger.Error("trial balance export", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	out, err := h.formatter.TrialBalanceCSV(tb)
	if err != nil {
		h.logger.Error("trial balance csv", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="trial-balance.csv"`)
	_, _ = w.Write([]byte(out))
}
