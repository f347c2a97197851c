package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
)

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{BaseRepository: base}
}

// Create inserts the notification and bumps the unread counter in one
// transaction. The counter row and the notification rows must never diverge.
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO notifications (
				id, user_id, category, type, title, message, data, priority,
				action_url, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		n.CreatedAt = time.Now()
		n.UpdatedAt = n.CreatedAt
		n.Status = model.NotificationStatusUnread

		_, err := tx.ExecContext(ctx, query,
			n.ID, n.UserID, n.Category, n.Type, n.Title, n.Message,
			n.Data, n.Priority, n.ActionURL, n.Status, n.CreatedAt, n.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return adjustUnread(ctx, tx, n.UserID, 1)
	})
}

func (r *notificationRepository) Get(ctx context.Context, userID, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT * FROM notifications WHERE id = $1 AND user_id = $2`
	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id, userID); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, userID uuid.UUID, filter *model.NotificationFilter) ([]*model.Notification, int64, error) {
	filter.Normalize()

	where := " WHERE user_id = $1"
	args := []interface{}{userID}
	idx := 2

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	} else {
		// Archived rows are hidden unless asked for.
		where += fmt.Sprintf(" AND status <> $%d", idx)
		args = append(args, model.NotificationStatusArchived)
		idx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM notifications%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, idx, idx+1,
	)
	args = append(args, filter.PageSize, filter.Offset())

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT unread FROM notification_counters WHERE user_id = $1`
	var count int64
	err := r.db.GetContext(ctx, &count, query, userID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// CountUnreadRows recomputes the counter from the rows. It must always match
// UnreadCount; a mismatch means a counter mutation escaped its transaction.
func (r *notificationRepository) CountUnreadRows(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND status = $2`
	var count int64
	err := r.db.GetContext(ctx, &count, query, userID, model.NotificationStatusUnread)
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	var changed bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE notifications SET status = $1, updated_at = $2
			WHERE id = $3 AND user_id = $4 AND status = $5
		`
		res, err := tx.ExecContext(ctx, query,
			model.NotificationStatusRead, time.Now(), id, userID, model.NotificationStatusUnread,
		)
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		changed = true
		return adjustUnread(ctx, tx, userID, -affected)
	})
	return changed, err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	var flipped int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE notifications SET status = $1, updated_at = $2
			WHERE user_id = $3 AND status = $4
		`
		res, err := tx.ExecContext(ctx, query,
			model.NotificationStatusRead, time.Now(), userID, model.NotificationStatusUnread,
		)
		if err != nil {
			return fmt.Errorf("failed to mark all read: %w", err)
		}
		flipped, err = res.RowsAffected()
		if err != nil {
			return err
		}
		reset := `
			INSERT INTO notification_counters (user_id, unread) VALUES ($1, 0)
			ON CONFLICT (user_id) DO UPDATE SET unread = 0
		`
		_, err = tx.ExecContext(ctx, reset, userID)
		return err
	})
	return flipped, err
}

func (r *notificationRepository) Archive(ctx context.Context, userID, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		prev, err := lockStatus(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if prev == model.NotificationStatusArchived {
			return nil
		}
		query := `UPDATE notifications SET status = $1, updated_at = $2 WHERE id = $3 AND user_id = $4`
		if _, err := tx.ExecContext(ctx, query, model.NotificationStatusArchived, time.Now(), id, userID); err != nil {
			return fmt.Errorf("failed to archive notification: %w", err)
		}
		if prev == model.NotificationStatusUnread {
			return adjustUnread(ctx, tx, userID, -1)
		}
		return nil
	})
}

func (r *notificationRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		prev, err := lockStatus(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		query := `DELETE FROM notifications WHERE id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, query, id, userID); err != nil {
			return fmt.Errorf("failed to delete notification: %w", err)
		}
		if prev == model.NotificationStatusUnread {
			return adjustUnread(ctx, tx, userID, -1)
		}
		return nil
	})
}

func (r *notificationRepository) DeleteArchivedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE status = $1 AND updated_at < $2`
	res, err := r.db.ExecContext(ctx, query, model.NotificationStatusArchived, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archived notifications: %w", err)
	}
	return res.RowsAffected()
}

// lockStatus reads the current status under FOR UPDATE so the counter
// adjustment in the same transaction cannot race a concurrent flip.
func lockStatus(ctx context.Context, tx *sqlx.Tx, userID, id uuid.UUID) (model.NotificationStatus, error) {
	query := `SELECT status FROM notifications WHERE id = $1 AND user_id = $2 FOR UPDATE`
	var status model.NotificationStatus
	if err := tx.GetContext(ctx, &status, query, id, userID); err != nil {
		return "", err
	}
	return status, nil
}

func adjustUnread(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64) error {
	query := `
		INSERT INTO notification_counters (user_id, unread) VALUES ($1, GREATEST($2, 0))
		ON CONFLICT (user_id) DO UPDATE SET unread = GREATEST(notification_counters.unread + $2, 0)
	`
	if _, err := tx.ExecContext(ctx, query, userID, delta); err != nil {
		return fmt.Errorf("failed to adjust unread counter: %w", err)
	}
	return nil
}
