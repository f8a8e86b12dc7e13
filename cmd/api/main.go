package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marginledger-backend/api/routes"
	"github.com/angelmondragon/marginledger-backend/internal/app"
	storefrontwebhook "github.com/angelmondragon/marginledger-backend/internal/webhooks/storefront"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/instance"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/metrics"
	"github.com/angelmondragon/marginledger-backend/pkg/migrate"
	"github.com/angelmondragon/marginledger-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	components, err := app.Build(app.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Metrics: ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	webhookService, err := storefrontwebhook.NewService(storefrontwebhook.ServiceParams{
		Orders:   components.Orders,
		Margins:  components.Margins,
		Statuses: components.Statuses,
		Stores:   components.Stores,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := storefrontwebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "storefront")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	verifier := storefrontwebhook.NewVerifier(cfg.Webhook, cfg.App)
	if verifier.AllowsUnsigned() {
		logg.Warn(context.Background(), "accepting unsigned storefront webhooks")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			components.Statuses,
			components.Wallet,
			components.Overview,
			components.Rates,
			components.Sync,
			routes.Webhook{Service: webhookService, Verifier: verifier, Guard: webhookGuard},
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
