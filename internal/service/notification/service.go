// Package notification is the delivery pipeline: it turns domain events into
// persisted, preference-filtered notifications and pushes them to live
// connections. Push failures are internal; they never fail the producing
// workflow.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/email"
	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
	"github.com/contentforge/review-api/internal/service/preference"
	apperrors "github.com/contentforge/review-api/pkg/errors"
	"github.com/contentforge/review-api/pkg/logger"
	"github.com/contentforge/review-api/pkg/metrics"
)

// Pusher fans a payload out to a user's live connections and reports how
// many accepted it. The realtime registry satisfies it.
type Pusher interface {
	Push(userID uuid.UUID, payload []byte) int
	Connections(userID uuid.UUID) int
}

// PushMessage is the single shape written to the real-time channel.
type PushMessage struct {
	Event   string              `json:"event"`
	Payload *model.Notification `json:"payload"`
}

const pushEventName = "new_notification"

type Service interface {
	Dispatch(ctx context.Context, evt *model.NotificationEvent) error
	List(ctx context.Context, userID uuid.UUID, filter *model.NotificationFilter) ([]*model.Notification, int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	Archive(ctx context.Context, userID, id uuid.UUID) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type Config struct {
	PushRetries    int
	PushRetryDelay time.Duration
}

type service struct {
	repo     repository.NotificationRepository
	prefs    preference.Service
	pusher   Pusher
	emailSvc email.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

func NewService(
	repo repository.NotificationRepository,
	prefs preference.Service,
	pusher Pusher,
	emailSvc email.Service,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) Service {
	if cfg.PushRetries <= 0 {
		cfg.PushRetries = 3
	}
	if cfg.PushRetryDelay <= 0 {
		cfg.PushRetryDelay = 250 * time.Millisecond
	}
	return &service{
		repo:     repo,
		prefs:    prefs,
		pusher:   pusher,
		emailSvc: emailSvc,
		logger:   log,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Dispatch handles one event for every target user. Policy suppression is
// expected behavior, not an error; per-user failures are logged and do not
// stop the fan-out to remaining users.
func (s *service) Dispatch(ctx context.Context, evt *model.NotificationEvent) error {
	var lastErr error
	for _, userID := range evt.UserIDs {
		if err := s.dispatchOne(ctx, userID, evt); err != nil {
			s.logger.Error(err, "failed to dispatch notification",
				"user_id", userID.String(), "event_type", evt.Type)
			lastErr = err
		}
	}
	return lastErr
}

func (s *service) dispatchOne(ctx context.Context, userID uuid.UUID, evt *model.NotificationEvent) error {
	pref, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return err
	}

	if !pref.CategoryEnabled(evt.Category) {
		s.countSuppressed("category_disabled")
		return nil
	}
	if !pref.InApp.Enabled {
		s.countSuppressed("in_app_disabled")
		return nil
	}

	n := &model.Notification{
		ID:       uuid.New(),
		UserID:   userID,
		Category: evt.Category,
		Type:     evt.Type,
		Title:    evt.Title,
		Message:  evt.Message,
		Data:     evt.Data,
		Priority: evt.Priority,
	}
	if evt.ActionURL != "" {
		n.ActionURL = &evt.ActionURL
	}

	// Persisting the record and bumping the counter is one transaction in
	// the repository. This must happen whether or not push is suppressed.
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.NotificationsDispatched.Inc()
	}

	if s.inDNDWindow(pref) {
		// DND mutes the immediate push only; the record above is already
		// persisted and counted.
		s.countSuppressed("do_not_disturb")
		return nil
	}

	if pref.Push.Enabled && pref.Push.Frequency == model.FrequencyImmediate {
		s.push(n)
	}
	if pref.Email.Enabled && pref.Email.Frequency == model.FrequencyImmediate && s.emailSvc != nil {
		if err := s.emailSvc.SendNotification(ctx, userID, n.Title, n.Message); err != nil {
			// Email is best-effort, same as push.
			s.logger.Error(err, "failed to send notification email", "user_id", userID.String())
		}
	}
	return nil
}

// push delivers to live connections with bounded retry. A user with no
// connections is not a failure; they will pull on next poll.
func (s *service) push(n *model.Notification) {
	payload, err := json.Marshal(PushMessage{Event: pushEventName, Payload: n})
	if err != nil {
		s.logger.Error(err, "failed to marshal push payload", "notification_id", n.ID.String())
		return
	}

	if s.pusher.Connections(n.UserID) == 0 {
		s.countPush("offline")
		return
	}

	for attempt := 0; attempt < s.cfg.PushRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.cfg.PushRetryDelay * time.Duration(attempt))
		}
		if s.pusher.Push(n.UserID, payload) > 0 {
			s.countPush("delivered")
			return
		}
	}

	// The notification record is safe; only the push attempt is dropped.
	deliveryErr := apperrors.Delivery("push delivery failed after retries", nil)
	s.logger.Error(deliveryErr, "dropping push attempt",
		"user_id", n.UserID.String(), "notification_id", n.ID.String())
	s.countPush("dropped")
}

// inDNDWindow evaluates the user's local time against the configured window,
// which may wrap past midnight (22:00-08:00).
func (s *service) inDNDWindow(pref *model.NotificationPreference) bool {
	dnd := pref.DoNotDisturb
	if !dnd.Enabled {
		return false
	}
	start, err := time.Parse("15:04", dnd.StartTime)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", dnd.EndTime)
	if err != nil {
		return false
	}

	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := s.now().In(loc)
	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		return minutes >= startMin && minutes < endMin
	}
	return minutes >= startMin || minutes < endMin
}

func (s *service) List(ctx context.Context, userID uuid.UUID, filter *model.NotificationFilter) ([]*model.Notification, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.Validation("unknown status filter", nil)
	}
	notifications, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return notifications, total, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return count, nil
}

// MarkAsRead is idempotent: a second call on the same notification is a
// no-op, not an error.
func (s *service) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, userID, id); err != nil {
		return s.mapRowErr(err)
	}
	if _, err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *service) Archive(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Archive(ctx, userID, id); err != nil {
		return s.mapRowErr(err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return s.mapRowErr(err)
	}
	return nil
}

func (s *service) mapRowErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("notification", err)
	}
	return apperrors.Internal(err)
}

func (s *service) countSuppressed(reason string) {
	if s.metrics != nil {
		s.metrics.NotificationsSuppressed.WithLabelValues(reason).Inc()
	}
}

func (s *service) countPush(status string) {
	if s.metrics != nil {
		s.metrics.PushDeliveries.WithLabelValues(status).Inc()
	}
}
