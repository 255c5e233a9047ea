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

	"github.com/cmlabs-hris/hris-leave-go/internal/app"
	"github.com/cmlabs-hris/hris-leave-go/internal/config"
	appHTTP "github.com/cmlabs-hris/hris-leave-go/internal/handler/http"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/logger"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-leave-go/internal/service/notification"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)

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

	hub := sse.NewHub(cfg.Notification.SSEBuffer)
	publishers := []notification.Publisher{notification.NewHubPublisher(hub)}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close", slog.Any("error", err))
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping", slog.Any("error", err))
		}
		publishers = append(publishers, notification.NewRedisPublisher(redisClient, cfg.Redis.Channel))
	}

	dispatcher := notification.NewDispatcher(log, notification.Config{
		WorkerCount:    cfg.Notification.Workers,
		QueueSize:      cfg.Notification.QueueSize,
		PublishTimeout: cfg.Notification.PublishTimeout,
	}, publishers...)

	leaveService := app.NewLeaveService(cfg, storage, dispatcher, log)

	scheduler := cron.NewScheduler(log)
	if cfg.Leave.ReconcileInterval > 0 {
		cron.NewLeaveJobs(leaveService, log).RegisterJobs(scheduler, cfg.Leave.ReconcileInterval)
		scheduler.Start()
	}

	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			RateLimit:      cfg.HTTP.RateLimit,
			RateWindow:     cfg.HTTP.RateWindow,
		},
		log,
		appHTTP.NewLeaveHandler(leaveService, log),
		appHTTP.NewEventsHandler(hub, cfg.Notification.SSEKeepalive, log),
	)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("starting http server", slog.String("addr", server.Addr), slog.String("driver", storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown", slog.Any("error", err))
	}
	scheduler.Stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notification dispatcher close", slog.Any("error", err))
	}
}
