package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/marginledger-backend/api/responses"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

const envHeader = "X-MarginLedger-Env"

// Pinger is any dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings postgres and redis. Either failing reports 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, db Pinger, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		failed := false
		if db == nil || db.Ping(ctx) != nil {
			checks["postgres"] = "unavailable"
			failed = true
		}
		if redis == nil || redis.Ping(ctx) != nil {
			checks["redis"] = "unavailable"
			failed = true
		}
		if failed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
