package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/marginboard/internal/app"
	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/customers"
	"github.com/odyssey-erp/marginboard/internal/livesync"
	"github.com/odyssey-erp/marginboard/internal/observability"
	"github.com/odyssey-erp/marginboard/internal/platform/cache"
	"github.com/odyssey-erp/marginboard/internal/platform/db"
	"github.com/odyssey-erp/marginboard/internal/portfolio"
	"github.com/odyssey-erp/marginboard/internal/resilience"
	"github.com/odyssey-erp/marginboard/internal/styles"
	"github.com/odyssey-erp/marginboard/internal/styles/export"
	"github.com/odyssey-erp/marginboard/internal/validation"
	"github.com/odyssey-erp/marginboard/jobs"
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("marginboard stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	calc, err := costing.NewCalculator(cfg.Costing())
	if err != nil {
		return err
	}
	validator, err := validation.New(cfg.Validation())
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	executor, err := resilience.NewExecutor(cfg.Retry(),
		resilience.WithLogger(logger),
		resilience.WithObserver(func(class resilience.Class) {
			metrics.StoreRetry(string(class))
		}),
	)
	if err != nil {
		return err
	}

	events := styles.NewRedisEvents(redisClient, logger)
	summaryCache := portfolio.NewCache(redisClient, cfg.SummaryCacheTTL)

	styleService := styles.NewService(styles.ServiceParams{
		Store:       styles.NewRepository(pool),
		Executor:    executor,
		Validator:   validator,
		Calculator:  calc,
		Events:      events,
		Invalidator: summaryCache,
		Logger:      logger,
	})
	customerService := customers.NewService(customers.NewRepository(pool), summaryCache, logger)
	summaryService := portfolio.NewService(styleService, calc, summaryCache, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	gateway := livesync.NewGateway(livesync.Deps{
		Saver:     styleService,
		Validator: validator,
		Calc:      calc,
		Config:    cfg.Sync(),
		Logger:    logger,
		Observer:  metrics.LiveSave,
	}, styleService, events, logger, cfg.AllowedOrigins)
	gateway.Connections = metrics.LiveConnections

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    cfg,
		Metrics:   metrics,
		Auth:      app.NewTokenAuth(cfg.APITokenHash, logger),
		Customers: customers.NewHandler(logger, customerService),
		Styles:    styles.NewHandler(logger, styleService, jobClient),
		Export:    export.NewHandler(logger, styleService, export.NewWriter(cfg.CurrencySymbol)),
		Summary:   portfolio.NewHandler(logger, summaryService),
		Live:      gateway,
		Jobs:      jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("marginboard listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
