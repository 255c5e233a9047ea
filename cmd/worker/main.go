package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/hris-leave-go/internal/app"
	"github.com/cmlabs-hris/hris-leave-go/internal/config"
	"github.com/cmlabs-hris/hris-leave-go/internal/jobs"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/logger"
	"github.com/hibiken/asynq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(cfg.App.Name+"-worker", cfg.App.Env, cfg.App.LogLevel)

	if cfg.Redis.Addr == "" {
		log.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("memory driver: the worker reconciles its own empty store")
	}

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		log.Error("open storage", slog.String("driver", cfg.Database.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Warn("storage close", slog.Any("error", err))
		}
	}()

	leaveService := app.NewLeaveService(cfg, storage, nil, log)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		Logger:        log,
		Concurrency:   cfg.Leave.WorkerConcurrency,
		ReconcileCron: cfg.Leave.ReconcileCron,
		Reconcile:     jobs.NewReconcileJob(leaveService, log),
	})
	if err != nil {
		log.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
