package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/model"
)

// ErrVersionConflict is returned by optimistic updates that lost a race.
// The service layer maps it to a ConcurrencyConflict for the caller.
var ErrVersionConflict = errors.New("stale version, aggregate was modified concurrently")

// All repository interfaces in one file
type (
	// QualityCheckRepository persists the review aggregate. Update variants
	// enforce the optimistic version check; multi-row variants run in one
	// transaction.
	QualityCheckRepository interface {
		Create(ctx context.Context, check *model.QualityCheck) error
		Get(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error)
		List(ctx context.Context, filter *model.QualityCheckFilter) ([]*model.QualityCheck, int64, error)
		Update(ctx context.Context, check *model.QualityCheck) error
		UpdateWithEvent(ctx context.Context, check *model.QualityCheck, event *model.OutboxEvent) error
		UpdateWithRevision(ctx context.Context, check *model.QualityCheck, revision *model.Revision) error
		AddComment(ctx context.Context, comment *model.Comment) error
		ListComments(ctx context.Context, checkID uuid.UUID) ([]*model.Comment, error)
		ListRevisions(ctx context.Context, checkID uuid.UUID) ([]*model.Revision, error)
	}

	// ReviewerRepository backs the assignment policy.
	ReviewerRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Reviewer, error)
		List(ctx context.Context) ([]*model.Reviewer, error)
		GetLeastLoaded(ctx context.Context) (*model.Reviewer, error)
		TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	// NotificationRepository mutates notification rows and the unread
	// counter as one atomic unit per operation.
	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		Get(ctx context.Context, userID, id uuid.UUID) (*model.Notification, error)
		List(ctx context.Context, userID uuid.UUID, filter *model.NotificationFilter) ([]*model.Notification, int64, error)
		UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
		CountUnreadRows(ctx context.Context, userID uuid.UUID) (int64, error)
		MarkRead(ctx context.Context, userID, id uuid.UUID) (bool, error)
		MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
		Archive(ctx context.Context, userID, id uuid.UUID) error
		Delete(ctx context.Context, userID, id uuid.UUID) error
		DeleteArchivedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// PreferenceRepository stores whole preference documents.
	PreferenceRepository interface {
		Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error)
		Upsert(ctx context.Context, pref *model.NotificationPreference) error
	}

	// OutboxRepository stages domain events for the broker.
	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
