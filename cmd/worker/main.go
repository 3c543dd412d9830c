// Package main provides the scheduled backfill worker that relays past
// completed orders on a best-effort timer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/example/meta-conversions-relay/internal/capi"
	"github.com/example/meta-conversions-relay/internal/config"
	"github.com/example/meta-conversions-relay/internal/lock"
	"github.com/example/meta-conversions-relay/internal/logger"
	"github.com/example/meta-conversions-relay/internal/repository"
	"github.com/example/meta-conversions-relay/internal/secrets"
	"github.com/example/meta-conversions-relay/internal/service"
)

const (
	backfillLockKey  = "relay:backfill:lock"
	signalBufferSize = 1
	exitCode         = 1
)

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping worker")
		cancel()
	}()

	return ctx, cancel
}

// runWorkerLoop invokes the backfill on every tick while the cron flag is
// enabled in settings. Timer fidelity is best-effort; skipped or late ticks
// are harmless because the candidate query always picks up whatever is still
// unsent.
func runWorkerLoop(
	ctx context.Context,
	backfillService service.BackfillService,
	settingsRepo repository.SettingsRepository,
	tick time.Duration,
) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return
		case <-ticker.C:
			settings, err := settingsRepo.Get(ctx)
			if err != nil {
				slog.Error("failed to load settings", slog.String("error", err.Error()))
				continue
			}

			if !settings.CronEnabled {
				slog.Debug("scheduled backfill disabled, skipping tick")
				continue
			}

			summary, err := backfillService.Run(ctx, settings.CronBatchSize, "cron")
			if err != nil {
				slog.Error("scheduled backfill failed", slog.String("error", err.Error()))
				continue
			}

			if summary.Locked {
				slog.Debug("scheduled backfill skipped, lease held elsewhere")
			}
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel)
	slog.SetDefault(loggerInstance)

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	codec := secrets.NewAESCodec(cfg.TokenKey)

	orderRepo := repository.NewOrderRepositoryImpl(dbPool)
	settingsRepo := repository.NewSettingsRepositoryImpl(dbPool, codec)
	auditRepo := repository.NewAuditRepositoryImpl(dbPool)
	runRepo := repository.NewRunRepositoryImpl(dbPool)

	client := capi.NewClient(auditRepo)
	relayService := service.NewRelayServiceImpl(orderRepo, settingsRepo, auditRepo, client)
	backfillLock := lock.NewRedisLock(redisClient, backfillLockKey)
	backfillService := service.NewBackfillServiceImpl(
		orderRepo, settingsRepo, auditRepo, runRepo,
		relayService, backfillLock, cfg.LockTTL, cfg.PaceDelay,
	)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	slog.Info("starting backfill worker",
		slog.String("service", "worker"),
		slog.String("tick", cfg.WorkerTick.String()),
	)

	runWorkerLoop(ctx, backfillService, settingsRepo, cfg.WorkerTick)
}
