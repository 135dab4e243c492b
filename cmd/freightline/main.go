package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/freightline-erp/freightline/internal/allocations"
	"github.com/freightline-erp/freightline/internal/app"
	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/platform/cache"
	"github.com/freightline-erp/freightline/internal/platform/db"
	"github.com/freightline-erp/freightline/internal/receipts"
	"github.com/freightline-erp/freightline/internal/shared"
	"github.com/freightline-erp/freightline/jobs"
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
		logger.Warn("redis unavailable, receipt cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)

	itemsRepo := items.NewRepository(pool)
	itemsService := items.NewService(itemsRepo, auditLogger)
	itemsHandler := items.NewHandler(logger, itemsService, ledgerRepo)

	statusCache := receipts.NewStatusCache(redisClient, cfg.ReceiptCacheTTL)
	receiptsRepo := receipts.NewRepository(pool)
	receiptsService := receipts.NewService(receiptsRepo, statusCache, logger)
	receiptsHandler := receipts.NewHandler(logger, receiptsService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	allocationsRepo := allocations.NewRepository(pool)
	allocationsService := allocations.NewService(allocationsRepo, auditLogger, idempotencyStore, receiptsService, jobClient, logger)
	allocationsHandler := allocations.NewHandler(logger, allocationsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ItemsHandler:       itemsHandler,
		AllocationsHandler: allocationsHandler,
		ReceiptsHandler:    receiptsHandler,
		JobHandler:         jobHandler,
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
