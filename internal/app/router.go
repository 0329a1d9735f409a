package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/fx"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/observability"
	"github.com/rethread-erp/rethread-erp/internal/procurement"
	"github.com/rethread-erp/rethread-erp/internal/production"
	"github.com/rethread-erp/rethread-erp/internal/sales"
	"github.com/rethread-erp/rethread-erp/jobs"
	"github.com/rethread-erp/rethread-erp/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthService        *auth.Service
	AuthHandler        *auth.Handler
	LedgerHandler      *ledger.Handler
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	ProductionHandler  *production.Handler
	SalesHandler       *sales.Handler
	FXHandler          *fx.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware(params.Logger, params.AuthService))
		if params.AuthHandler != nil {
			params.AuthHandler.MountRoutes(api)
		}
		params.LedgerHandler.MountRoutes(api)
		params.InventoryHandler.MountRoutes(api)
		params.ProcurementHandler.MountRoutes(api)
		params.ProductionHandler.MountRoutes(api)
		params.SalesHandler.MountRoutes(api)
		params.FXHandler.MountRoutes(api)
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(api)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(api)
		}
	})

	return r
}
