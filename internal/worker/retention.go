package worker

import (
	"context"
	"time"

	"github.com/contentforge/review-api/internal/repository"
	"github.com/contentforge/review-api/pkg/logger"
)

type RetentionConfig struct {
	Interval         time.Duration
	OutboxRetention  time.Duration
	ArchiveRetention time.Duration
}

// RetentionWorker sweeps processed outbox rows and old archived notifications
// on a fixed interval.
type RetentionWorker struct {
	outbox        repository.OutboxRepository
	notifications repository.NotificationRepository
	config        RetentionConfig
	logger        *logger.Logger
}

func NewRetentionWorker(
	outbox repository.OutboxRepository,
	notifications repository.NotificationRepository,
	config RetentionConfig,
	log *logger.Logger,
) *RetentionWorker {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.OutboxRetention <= 0 {
		config.OutboxRetention = 7 * 24 * time.Hour
	}
	if config.ArchiveRetention <= 0 {
		config.ArchiveRetention = 90 * 24 * time.Hour
	}
	return &RetentionWorker{
		outbox:        outbox,
		notifications: notifications,
		config:        config,
		logger:        log,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting retention worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down retention worker")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) {
	now := time.Now()

	if n, err := w.outbox.DeleteProcessedBefore(ctx, now.Add(-w.config.OutboxRetention)); err != nil {
		w.logger.Error(err, "Failed to sweep processed outbox events")
	} else if n > 0 {
		w.logger.Info("Swept processed outbox events", "deleted", n)
	}

	if n, err := w.notifications.DeleteArchivedBefore(ctx, now.Add(-w.config.ArchiveRetention)); err != nil {
		w.logger.Error(err, "Failed to sweep archived notifications")
	} else if n > 0 {
		w.logger.Info("Swept archived notifications", "deleted", n)
	}
}
