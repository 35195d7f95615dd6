package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/piescrow/piescrow-backend/internal/cron"
	"github.com/piescrow/piescrow-backend/internal/notifications"
	"github.com/piescrow/piescrow-backend/internal/orders"
	"github.com/piescrow/piescrow-backend/internal/payout"
	"github.com/piescrow/piescrow-backend/pkg/config"
	"github.com/piescrow/piescrow-backend/pkg/db"
	"github.com/piescrow/piescrow-backend/pkg/logger"
	"github.com/piescrow/piescrow-backend/pkg/metrics"
	"github.com/piescrow/piescrow-backend/pkg/migrate"
	"github.com/piescrow/piescrow-backend/pkg/pi"
	"github.com/piescrow/piescrow-backend/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

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

	piClient, err := pi.NewClient(context.Background(), cfg.Pi, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pi client", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, piClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), 0)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, piClient *pi.Client) (*cron.Registry, error) {
	ordersRepo := orders.NewRepository(dbClient.DB())
	payoutRepo := payout.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	notifier, err := notifications.NewService(notificationsRepo, logg)
	if err != nil {
		return nil, err
	}

	worker, err := payout.NewWorker(payout.WorkerParams{
		Tx:     dbClient,
		Repo:   payoutRepo,
		Orders: ordersRepo,
		Pi:     piClient,
		Config: cfg.Payout,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	payoutJob, err := cron.NewPayoutJob(cron.PayoutJobParams{
		Logger:    logg,
		Processor: worker,
	})
	if err != nil {
		return nil, err
	}

	orderTTLJob, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger: logg,
		Orders: ordersRepo,
		TTL:    cfg.Orders.ExpireAfter,
	})
	if err != nil {
		return nil, err
	}

	notificationCleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:    logg,
		Purger:    notifier,
		Retention: cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(payoutJob, orderTTLJob, notificationCleanupJob), nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
