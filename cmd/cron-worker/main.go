package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marginledger-backend/internal/app"
	"github.com/angelmondragon/marginledger-backend/internal/cron"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/instance"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/metrics"
	"github.com/angelmondragon/marginledger-backend/pkg/migrate"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox"
	"github.com/angelmondragon/marginledger-backend/pkg/redis"
)

const (
	lockName = "cron-worker"
	cronDay  = 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	components, err := app.Build(app.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, components)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, c *app.Components) (*cron.Registry, error) {
	syncJob, err := cron.NewOrderSyncJob(cron.OrderSyncJobParams{Logger: logg, Coordinator: c.Sync})
	if err != nil {
		return nil, err
	}
	retryJob, err := cron.NewWalletRetryJob(cron.WalletRetryJobParams{
		Logger:      logg,
		Outbox:      c.Outbox,
		Decoders:    outbox.DefaultDecoders(),
		Orders:      c.Orders,
		Ledger:      c.OrderWallet,
		BatchSize:   cfg.Wallet.RetryBatchSize,
		MaxAttempts: cfg.Wallet.RetryMaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewWalletReconcileJob(cron.WalletReconcileJobParams{Logger: logg, Wallet: c.Wallet})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: c.Outbox,
		Retention:  time.Duration(cfg.Cron.OutboxRetentionDays) * cronDay,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.Register(syncJob, cfg.Sync.Interval)
	registry.Register(retryJob, 0)
	registry.Register(reconcileJob, cfg.Cron.ReconcileEvery)
	registry.Register(retentionJob, cronDay)
	return registry, nil
}
