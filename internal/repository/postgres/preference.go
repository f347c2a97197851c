package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
)

type preferenceRepository struct {
	*BaseRepository
}

func NewPreferenceRepository(base *BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{BaseRepository: base}
}

type preferenceRow struct {
	UserID    uuid.UUID       `db:"user_id"`
	Doc       json.RawMessage `db:"doc"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r *preferenceRepository) Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	query := `SELECT user_id, doc, updated_at FROM notification_preferences WHERE user_id = $1`
	var row preferenceRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, err
	}

	var pref model.NotificationPreference
	if err := json.Unmarshal(row.Doc, &pref); err != nil {
		return nil, fmt.Errorf("failed to decode preference document: %w", err)
	}
	pref.UserID = row.UserID
	pref.UpdatedAt = row.UpdatedAt
	return &pref, nil
}

// Upsert replaces the whole document. Partial merges are intentionally not
// supported; the service validates the full document before it gets here.
func (r *preferenceRepository) Upsert(ctx context.Context, pref *model.NotificationPreference) error {
	doc, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to encode preference document: %w", err)
	}

	query := `
		INSERT INTO notification_preferences (user_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET doc = $2, updated_at = $3
	`
	pref.UpdatedAt = time.Now()
	if _, err := r.db.ExecContext(ctx, query, pref.UserID, doc, pref.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}
