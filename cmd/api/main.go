package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kukusoko/kukusoko-backend/api/routes"
	"github.com/kukusoko/kukusoko-backend/internal/catalog"
	"github.com/kukusoko/kukusoko-backend/internal/notifications"
	"github.com/kukusoko/kukusoko-backend/internal/orders"
	"github.com/kukusoko/kukusoko-backend/internal/payments"
	"github.com/kukusoko/kukusoko-backend/internal/reconcile"
	"github.com/kukusoko/kukusoko-backend/internal/timeline"
	"github.com/kukusoko/kukusoko-backend/internal/vouchers"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/metrics"
	"github.com/kukusoko/kukusoko-backend/pkg/migrate"
	"github.com/kukusoko/kukusoko-backend/pkg/mpesa"
	"github.com/kukusoko/kukusoko-backend/pkg/redis"
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
		Level:       logger.ParseLevel(cfg.App.LogLevel),
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	mpesaClient, err := mpesa.NewClient(context.Background(), cfg.Mpesa, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mpesa client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn)
	voucherRepo := vouchers.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	paymentsRepo := payments.NewRepository(conn)
	reconcileRepo := reconcile.NewRepository(conn)

	catalogSvc, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}
	voucherSvc, err := vouchers.NewService(voucherRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher service", err)
		os.Exit(1)
	}
	timelineSvc, err := timeline.NewService(timeline.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create timeline service", err)
		os.Exit(1)
	}

	// Email and SMS senders are not wired yet; notifications persist in-app
	// rows and skip the missing channels.
	notificationsRepo := notifications.NewRepository(conn)
	notifier, err := notifications.NewDispatcher(notificationsRepo, nil, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(orders.Deps{
		Repo:        ordersRepo,
		CatalogSvc:  catalogSvc,
		CatalogRepo: catalogRepo,
		VoucherSvc:  voucherSvc,
		VoucherRepo: voucherRepo,
		Timeline:    timelineSvc,
		Notifier:    notifier,
		Tx:          dbClient,
		Config:      cfg.Orders,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(paymentsRepo, mpesaClient, timelineSvc, paymentMetrics, cfg.Mpesa, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	reconcileSvc, err := reconcile.NewService(reconcile.Deps{
		Repo:        reconcileRepo,
		CatalogRepo: catalogRepo,
		Timeline:    timelineSvc,
		Notifier:    notifier,
		Tx:          dbClient,
		Idempotency: redisClient,
		Metrics:     paymentMetrics,
		Config:      cfg.Mpesa,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:            cfg,
			Logger:            logg,
			DBPinger:          dbClient,
			RedisPinger:       redisClient,
			OrdersSvc:         ordersSvc,
			PaymentsSvc:       paymentsSvc,
			ReconcileSvc:      reconcileSvc,
			NotificationsRepo: notificationsRepo,
			Registry:          registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
