package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marginledger-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/marginledger-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marginledger-backend/api/middleware"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/internal/rtorates"
	"github.com/angelmondragon/marginledger-backend/internal/wallet"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/redis"
)

const (
	replayTTL           = 24 * time.Hour
	adjustmentReplayTTL = 7 * 24 * time.Hour
)

// RedisStore is the redis surface the HTTP layer needs.
type RedisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Webhook groups the storefront webhook collaborators.
type Webhook struct {
	Service  webhookcontrollers.StorefrontWebhookService
	Verifier webhookcontrollers.SignatureVerifier
	Guard    webhookcontrollers.WebhookGuard
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	statusService orderstatus.Service,
	walletService wallet.Service,
	overviewReader controllers.WalletOverviewReader,
	rateService rtorates.Service,
	syncRunner controllers.SyncRunner,
	webhook Webhook,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	syncPolicy := middleware.NewRateLimitPolicy(
		"manual_sync",
		cfg.Sync.ManualWindow,
		cfg.Sync.ManualLimit,
	)

	var (
		healthRedis controllers.Pinger
		idemStore   redis.IdempotencyStore
	)
	if redisStore != nil {
		healthRedis = redisStore
		idemStore = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, healthRedis))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/storefront", webhookcontrollers.StorefrontWebhook(webhook.Service, webhook.Verifier, webhook.Guard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleSeller))
		r.Use(middleware.StoreContext(logg))
		r.Get("/wallet", controllers.SellerWalletOverview(overviewReader, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

		replayable := middleware.Idempotency(idemStore, logg, middleware.OptionalIdempotency(replayTTL))
		moneyMoving := middleware.Idempotency(idemStore, logg, middleware.RequiredIdempotency(adjustmentReplayTTL))

		r.Route("/stores/{store}", func(r chi.Router) {
			r.With(replayable).Post("/orders/{orderId}/status", controllers.AdminChangeOrderStatus(statusService, logg))
			r.Get("/wallet", controllers.AdminWalletOverview(overviewReader, logg))
			r.With(moneyMoving).Post("/wallet/adjustments", controllers.AdminWalletAdjustment(walletService, logg))
			r.Get("/wallet/reconcile", controllers.AdminWalletReconcile(walletService, logg))
		})

		r.Route("/sellers/{sellerId}/stores/{store}/rto-rates", func(r chi.Router) {
			r.Get("/", controllers.AdminListRTORates(rateService, logg))
			r.With(replayable).Post("/", controllers.AdminCreateRTORate(rateService, logg))
			r.Put("/{rateId}", controllers.AdminUpdateRTORate(rateService, logg))
			r.Delete("/{rateId}", controllers.AdminDeactivateRTORate(rateService, logg))
		})

		r.With(middleware.RateLimit(syncPolicy, redisStore, logg), replayable).Post("/sync", controllers.AdminTriggerSync(syncRunner, logg))
	})

	return r
}
