package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunovalongo/fretepay-backend/internal/consolidation"
	"github.com/brunovalongo/fretepay-backend/internal/cron"
	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	"github.com/brunovalongo/fretepay-backend/internal/gateway/dryrun"
	"github.com/brunovalongo/fretepay-backend/internal/gateway/iugu"
	"github.com/brunovalongo/fretepay-backend/internal/gateway/pagarme"
	"github.com/brunovalongo/fretepay-backend/internal/split"
	gatewaywebhook "github.com/brunovalongo/fretepay-backend/internal/webhooks/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/config"
	"github.com/brunovalongo/fretepay-backend/pkg/db"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	"github.com/brunovalongo/fretepay-backend/pkg/env"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
	"github.com/brunovalongo/fretepay-backend/pkg/metrics"
	"github.com/brunovalongo/fretepay-backend/pkg/migrate"
	"github.com/brunovalongo/fretepay-backend/pkg/redis"
)

const lockName = "consolidation-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "consolidation-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "consolidation-worker"

	logg = logger.New(logger.Options{
		ServiceName: "consolidation-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.Consolidation.Enabled {
		logg.Warn(context.Background(), "consolidation runs disabled by config, exiting")
		return
	}

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

	selector, err := buildSelector(cfg)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway selector", err)
		os.Exit(1)
	}

	engine, err := buildEngine(cfg, logg, dbClient, selector)
	if err != nil {
		logg.Error(context.Background(), "failed to build consolidation engine", err)
		os.Exit(1)
	}

	webhookService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Repo:              gatewaywebhook.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	consolidationJob, err := cron.NewConsolidationJob(cron.ConsolidationJobParams{
		Logger: logg,
		Engine: engine,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create consolidation job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:   logg,
		Repo:     consolidation.NewRepository(dbClient.DB()),
		Gateways: selector,
		Webhooks: webhookService,
		After:    cfg.Consolidation.ReconcileAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), cfg.Consolidation.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create run lock", err)
		os.Exit(1)
	}

	location, err := time.LoadLocation(cfg.Consolidation.Timezone)
	if err != nil {
		logg.Error(context.Background(), "failed to load timezone", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(consolidationJob, reconcileJob),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Consolidation.Interval,
		RunTimeout: cfg.Consolidation.RunTimeout,
		Location:   location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"mode":     cfg.Gateway.Mode().String(),
		"interval": cfg.Consolidation.Interval.String(),
	})
	logg.Info(ctx, "starting consolidation worker")

	if addr := env.Get("FRETEPAY_METRICS_ADDR", ""); addr != "" {
		go serveMetrics(ctx, logg, addr)
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "consolidation worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "consolidation worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithField(ctx, "addr", addr), "serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

func buildSelector(cfg *config.Config) (*gateway.Selector, error) {
	if cfg.Gateway.Mode() == enums.OperationModeDryRun {
		return gateway.NewSelector(enums.GatewayKindDryRun, enums.GatewayKindDryRun, dryrun.NewClient())
	}

	httpClient := &http.Client{Timeout: cfg.Gateway.CallTimeout}

	iuguClient, err := iugu.NewClient(cfg.Iugu.APIToken, cfg.Iugu.WebhookSecret,
		iugu.WithHTTPClient(httpClient), iugu.WithBaseURL(cfg.Iugu.BaseURL))
	if err != nil {
		return nil, err
	}
	pagarmeClient, err := pagarme.NewClient(cfg.Pagarme.APIKey, cfg.Pagarme.WebhookSecret,
		pagarme.WithHTTPClient(httpClient), pagarme.WithBaseURL(cfg.Pagarme.BaseURL))
	if err != nil {
		return nil, err
	}

	return gateway.NewSelector(cfg.Gateway.Default(), enums.GatewayKindIugu, iuguClient, pagarmeClient)
}

func buildEngine(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, selector *gateway.Selector) (*consolidation.Engine, error) {
	courier, manager, platform, err := cfg.Split.Rates()
	if err != nil {
		return nil, err
	}
	minAmount, err := cfg.Consolidation.MinAmountDecimal()
	if err != nil {
		return nil, err
	}
	calculator, err := split.NewCalculator(split.Rates{
		Courier:  courier,
		Manager:  manager,
		Platform: platform,
	}, minAmount)
	if err != nil {
		return nil, err
	}

	return consolidation.NewEngine(consolidation.EngineParams{
		Tx:          dbClient,
		Repo:        consolidation.NewRepository(dbClient.DB()),
		Calculator:  calculator,
		Selector:    selector,
		Retry:       gateway.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff),
		Logger:      logg,
		Metrics:     metrics.NewConsolidationMetrics(prometheus.DefaultRegisterer),
		MaxOrders:   cfg.Consolidation.MaxOrdersPerInvoice,
		Expiry:      cfg.Consolidation.InvoiceExpiry,
		Concurrency: cfg.Consolidation.WorkerConcurrency,
	})
}
