// Package event builds and stages notification dispatch events. Events ride
// the outbox: they commit with the state change that produced them and a
// background processor hands them to the broker.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
)

// ChannelNotifications is the broker channel the delivery pipeline consumes.
const ChannelNotifications = "notification.dispatch"

type Publisher interface {
	// DispatchEvent builds an outbox row for the event without persisting
	// it; callers stage it inside their own transaction.
	DispatchEvent(evt *model.NotificationEvent) (*model.OutboxEvent, error)
	// Emit stages the event on its own, for producers without a
	// surrounding transaction (order, payment, chat collaborators).
	Emit(ctx context.Context, evt *model.NotificationEvent) error
}

type publisher struct {
	outbox repository.OutboxRepository
}

func NewPublisher(outbox repository.OutboxRepository) Publisher {
	return &publisher{outbox: outbox}
}

func (p *publisher) DispatchEvent(evt *model.NotificationEvent) (*model.OutboxEvent, error) {
	if len(evt.UserIDs) == 0 {
		return nil, fmt.Errorf("event has no target users")
	}
	if !evt.Category.Valid() {
		return nil, fmt.Errorf("unknown event category %q", evt.Category)
	}
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.EmittedAt.IsZero() {
		evt.EmittedAt = time.Now()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: ChannelNotifications,
		Payload:   payload,
	}, nil
}

func (p *publisher) Emit(ctx context.Context, evt *model.NotificationEvent) error {
	outboxEvent, err := p.DispatchEvent(evt)
	if err != nil {
		return err
	}
	return p.outbox.Create(ctx, outboxEvent)
}
