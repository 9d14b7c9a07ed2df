package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kukusoko/kukusoko-backend/api/controllers"
	"github.com/kukusoko/kukusoko-backend/api/middleware"
	"github.com/kukusoko/kukusoko-backend/internal/notifications"
	"github.com/kukusoko/kukusoko-backend/internal/orders"
	"github.com/kukusoko/kukusoko-backend/internal/payments"
	"github.com/kukusoko/kukusoko-backend/internal/reconcile"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs wired in.
type Deps struct {
	Config            *config.Config
	Logger            *logger.Logger
	DBPinger          db.Pinger
	RedisPinger       redis.Pinger
	OrdersSvc         orders.Service
	PaymentsSvc       payments.Service
	ReconcileSvc      reconcile.Service
	NotificationsRepo notifications.Repository
	Registry          *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.RedisPinger))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// Gateway-facing callback; authenticated by URL knowledge, not JWT.
	r.Post("/api/payments/callback/order/{orderID}", controllers.MpesaCallback(deps.ReconcileSvc, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRoles(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin)).
				Post("/", controllers.CreateOrder(deps.OrdersSvc, logg))
			r.Get("/", controllers.ListOrders(deps.OrdersSvc, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.OrdersSvc, logg))
			r.Get("/{orderID}/timeline", controllers.GetOrderTimeline(deps.OrdersSvc, logg))
			r.With(middleware.RequireRoles(logg, enums.ActorRoleSeller, enums.ActorRoleAdmin)).
				Patch("/{orderID}/status", controllers.UpdateOrderStatus(deps.OrdersSvc, logg))
		})

		r.Post("/payments", controllers.InitiatePayment(deps.PaymentsSvc, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.NotificationsRepo, logg))
			r.Patch("/{notificationID}/read", controllers.MarkNotificationRead(deps.NotificationsRepo, logg))
		})
	})

	return r
}
