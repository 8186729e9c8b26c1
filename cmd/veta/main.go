package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/veta-logistics/veta/internal/app"
	"github.com/veta-logistics/veta/internal/audit"
	"github.com/veta-logistics/veta/internal/auth"
	"github.com/veta-logistics/veta/internal/dispatches"
	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/masterdata/measures"
	"github.com/veta-logistics/veta/internal/masterdata/mines"
	"github.com/veta-logistics/veta/internal/masterdata/products"
	"github.com/veta-logistics/veta/internal/masterdata/supervisors"
	"github.com/veta-logistics/veta/internal/masterdata/suppliers"
	"github.com/veta-logistics/veta/internal/observability"
	"github.com/veta-logistics/veta/internal/platform/cache"
	"github.com/veta-logistics/veta/internal/platform/db"
	"github.com/veta-logistics/veta/internal/requirements"
	"github.com/veta-logistics/veta/internal/shared"
	"github.com/veta-logistics/veta/internal/trips"
	"github.com/veta-logistics/veta/internal/users"
	"github.com/veta-logistics/veta/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokens)
	authHandler := auth.NewHandler(logger, authService, validate)

	stockCache := kardex.NewStockCache(redisClient, cfg.StockCacheTTL)
	kardexRepo := kardex.NewRepository(pool)
	kardexService := kardex.NewService(kardexRepo, auditLogger, stockCache)
	kardexHandler := kardex.NewHandler(logger, kardexService, stockCache, validate)

	requirementsService := requirements.NewService(requirements.NewRepository(pool), auditLogger)
	requirementsHandler := requirements.NewHandler(logger, requirementsService, validate)

	tripsService := trips.NewService(trips.NewRepository(pool), auditLogger, stockCache)
	tripsHandler := trips.NewHandler(logger, tripsService, validate)

	dispatchesService := dispatches.NewService(dispatches.NewRepository(pool), auditLogger, stockCache)
	dispatchesHandler := dispatches.NewHandler(logger, dispatchesService, validate)

	productsHandler := products.NewHandler(logger, products.NewService(products.NewRepository(pool)), validate)
	suppliersHandler := suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(pool)), validate)
	minesHandler := mines.NewHandler(logger, mines.NewService(mines.NewRepository(pool)), validate)
	supervisorsHandler := supervisors.NewHandler(logger, supervisors.NewService(supervisors.NewRepository(pool)), validate)
	measuresHandler := measures.NewHandler(logger, measures.NewService(measures.NewRepository(pool)), validate)

	usersHandler := users.NewHandler(logger, users.NewService(users.NewRepository(pool)), validate)
	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AuthService:         authService,
		AuthHandler:         authHandler,
		ProductsHandler:     productsHandler,
		SuppliersHandler:    suppliersHandler,
		MinesHandler:        minesHandler,
		SupervisorsHandler:  supervisorsHandler,
		MeasuresHandler:     measuresHandler,
		RequirementsHandler: requirementsHandler,
		TripsHandler:        tripsHandler,
		DispatchesHandler:   dispatchesHandler,
		KardexHandler:       kardexHandler,
		UsersHandler:        usersHandler,
		AuditHandler:        auditHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
