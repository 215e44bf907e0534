package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/marginboard/internal/app"
	"github.com/odyssey-erp/marginboard/internal/costing"
	jobmetrics "github.com/odyssey-erp/marginboard/internal/jobs"
	"github.com/odyssey-erp/marginboard/internal/platform/cache"
	"github.com/odyssey-erp/marginboard/internal/platform/db"
	"github.com/odyssey-erp/marginboard/internal/portfolio"
	"github.com/odyssey-erp/marginboard/internal/resilience"
	"github.com/odyssey-erp/marginboard/internal/styles"
	"github.com/odyssey-erp/marginboard/internal/validation"
	"github.com/odyssey-erp/marginboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	calc, err := costing.NewCalculator(cfg.Costing())
	if err != nil {
		logger.Error("init calculator", slog.Any("error", err))
		os.Exit(1)
	}
	validator, err := validation.New(cfg.Validation())
	if err != nil {
		logger.Error("init validator", slog.Any("error", err))
		os.Exit(1)
	}
	executor, err := resilience.NewExecutor(cfg.Retry(), resilience.WithLogger(logger))
	if err != nil {
		logger.Error("init retry executor", slog.Any("error", err))
		os.Exit(1)
	}

	styleService := styles.NewService(styles.ServiceParams{
		Store:       styles.NewRepository(pool),
		Executor:    executor,
		Validator:   validator,
		Calculator:  calc,
		Events:      styles.NewRedisEvents(redisClient, logger),
		Invalidator: portfolio.NewCache(redisClient, cfg.SummaryCacheTTL),
		Logger:      logger,
	})
	importJob := jobs.NewImportJob(styleService, logger, jobmetrics.NewMetrics(nil))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStylesImport, Handler: importJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
