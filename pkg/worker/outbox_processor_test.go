package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/pkg/logger"
	"github.com/contentforge/review-api/pkg/metrics"
)

type fakeOutboxRepo struct {
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	failed    map[uuid.UUID]string
}

func newFakeOutboxRepo(events ...*model.OutboxEvent) *fakeOutboxRepo {
	return &fakeOutboxRepo{pending: events, failed: make(map[uuid.UUID]string)}
}

func (f *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	f.pending = append(f.pending, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEventsWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeOutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, _ *time.Time) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	published map[string][][]byte
	err       error
	attempts  int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: make(map[string][][]byte)}
}

func (f *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	f.attempts++
	if f.err != nil {
		return f.err
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) Close() error { return nil }

func stagedEvent() *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: "notification.dispatch",
		Payload:   json.RawMessage(`{"type":"review_completed"}`),
		Status:    model.OutboxStatusPending,
	}
}

func newProcessor(repo *fakeOutboxRepo, broker *fakeBroker) *OutboxProcessor {
	return NewOutboxProcessor(
		repo,
		broker,
		OutboxProcessorConfig{BatchSize: 10, PollInterval: time.Second, RetryAttempts: 2, RetryDelay: time.Millisecond},
		logger.NewLogger(nil),
		metrics.NewMetricsWith(prometheus.NewRegistry(), "test"),
	)
}

func TestProcessEventsPublishesAndMarks(t *testing.T) {
	event := stagedEvent()
	repo := newFakeOutboxRepo(event)
	broker := newFakeBroker()
	p := newProcessor(repo, broker)

	require.NoError(t, p.processEvents(context.Background()))

	assert.Len(t, broker.published["notification.dispatch"], 1)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.processed)
	assert.Empty(t, repo.failed)
}

func TestProcessEventsMarksFailedAfterRetries(t *testing.T) {
	event := stagedEvent()
	repo := newFakeOutboxRepo(event)
	broker := newFakeBroker()
	broker.err = errors.New("redis gone")
	p := newProcessor(repo, broker)

	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, 2, broker.attempts)
	assert.Empty(t, repo.processed)
	assert.Contains(t, repo.failed[event.ID], "redis gone")
}

func TestProcessEventsContinuesPastFailure(t *testing.T) {
	bad := stagedEvent()
	good := stagedEvent()
	repo := newFakeOutboxRepo(bad, good)

	broker := newFakeBroker()
	broker.err = errors.New("transient")
	p := newProcessor(repo, broker)

	assert.Error(t, p.processEvent(context.Background(), bad))
	broker.err = nil
	require.NoError(t, p.processEvent(context.Background(), good))

	assert.Equal(t, []uuid.UUID{good.ID}, repo.processed)
	assert.Contains(t, repo.failed, bad.ID)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := newProcessor(newFakeOutboxRepo(), newFakeBroker())
	p.config.RetryDelay = time.Second

	assert.Equal(t, time.Second, p.backoff(0))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, 5*time.Minute, p.backoff(30))
}
