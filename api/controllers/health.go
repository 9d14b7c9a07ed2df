package controllers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/kukusoko/kukusoko-backend/api/responses"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/redis"
)

const readinessTimeout = 3 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kukusoko-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis before reporting ready. A nil
// pinger is skipped so tests and partial deployments stay green.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger db.Pinger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kukusoko-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var err error
		if dbPinger != nil {
			err = multierr.Append(err, dbPinger.Ping(ctx))
		}
		if redisPinger != nil {
			err = multierr.Append(err, redisPinger.Ping(ctx))
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness check failed"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
