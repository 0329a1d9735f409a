package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rethread-erp/rethread-erp/cmd/rethread/cli"
	"github.com/rethread-erp/rethread-erp/internal/app"
	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/fx"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/observability"
	"github.com/rethread-erp/rethread-erp/internal/platform/db"
	"github.com/rethread-erp/rethread-erp/internal/procurement"
	"github.com/rethread-erp/rethread-erp/internal/production"
	"github.com/rethread-erp/rethread-erp/internal/sales"
	"github.com/rethread-erp/rethread-erp/internal/shared"
	"github.com/rethread-erp/rethread-erp/jobs"
	"github.com/rethread-erp/rethread-erp/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	fxRepo := fx.NewRepository(pool)
	fxCache := fx.NewCache(redisClient, cfg.FXCacheTTL)
	fxSource := fx.NewSource(fxRepo, fxCache)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	if len(os.Args) > 1 {
		os.Exit(cli.Run(ctx, os.Args[1:], cli.Deps{Logger: logger, Rates: fxRepo, Auth: authService}))
	}

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerService.WithMetrics(metrics)
	mappingRepo := ledger.NewMappingRepository(pool)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, ledgerService, mappingRepo, auditLogger, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, inventoryService, ledgerService, mappingRepo, auditLogger)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, inventoryService, ledgerService, mappingRepo, auditLogger)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, inventoryService, ledgerService, mappingRepo, auditLogger)

	formatter := report.NewFormatter("en")
	reportHandler := report.NewHandler(logger, ledgerService, formatter)

	jobsInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(jobsInspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthService:        authService,
		AuthHandler:        auth.NewHandler(logger, authService, validate),
		LedgerHandler:      ledger.NewHandler(logger, ledgerService, mappingRepo, validate),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, validate),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, idempotencyStore, validate),
		ProductionHandler:  production.NewHandler(logger, productionService, validate),
		SalesHandler:       sales.NewHandler(logger, salesService, idempotencyStore, validate),
		FXHandler:          fx.NewHandler(logger, fxSource, fxRepo, validate),
		ReportHandler:      reportHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
