package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/contentforge/review-api/config"
	"github.com/contentforge/review-api/internal/repository/postgres"
	internalWorker "github.com/contentforge/review-api/internal/worker"
	"github.com/contentforge/review-api/pkg/logger"
	redisBroker "github.com/contentforge/review-api/pkg/messaging/redis"
	"github.com/contentforge/review-api/pkg/metrics"
	"github.com/contentforge/review-api/pkg/worker"
)

// Standalone worker binary: runs the outbox processor and the retention
// sweeper without the HTTP surface. Deployments that want the API process to
// stay request-only run this next to it.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("review_worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	zl := log.Logger
	broker, err := redisBroker.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	processor := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), appLogger, appMetrics)
	wg.Add(1)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()

	retention := internalWorker.NewRetentionWorker(outboxRepo, notificationRepo, internalWorker.RetentionConfig{
		Interval:         cfg.Retention.Interval,
		OutboxRetention:  cfg.Retention.OutboxRetention,
		ArchiveRetention: cfg.Retention.ArchiveRetention,
	}, appLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		retention.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down workers")
	cancel()
	wg.Wait()
	appLogger.Info("Workers exited")
}
