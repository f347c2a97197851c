package worker

import (
	"context"
	"encoding/json"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/service/event"
	"github.com/contentforge/review-api/internal/service/notification"
	"github.com/contentforge/review-api/pkg/logger"
	"github.com/contentforge/review-api/pkg/messaging"
)

// Dispatcher consumes dispatch events from the broker and feeds them to the
// notification pipeline. It is the only consumer of the notification channel.
type Dispatcher struct {
	broker  messaging.Broker
	service notification.Service
	logger  *logger.Logger
}

func NewDispatcher(broker messaging.Broker, service notification.Service, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		broker:  broker,
		service: service,
		logger:  log,
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	messages, err := d.broker.Subscribe(ctx, event.ChannelNotifications)
	if err != nil {
		return err
	}

	d.logger.Info("Starting notification dispatcher")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down notification dispatcher")
			return nil
		case raw, ok := <-messages:
			if !ok {
				d.logger.Info("Broker channel closed, stopping dispatcher")
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw []byte) {
	var evt model.NotificationEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		// A malformed payload will never parse; drop it rather than wedge
		// the channel.
		d.logger.Error(err, "Failed to decode notification event")
		return
	}

	if err := d.service.Dispatch(ctx, &evt); err != nil {
		d.logger.Error(err, "Failed to dispatch notification event",
			"event_id", evt.ID.String(),
			"event_type", evt.Type)
	}
}
