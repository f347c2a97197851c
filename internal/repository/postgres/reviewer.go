package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
)

type reviewerRepository struct {
	*BaseRepository
}

func NewReviewerRepository(base *BaseRepository) repository.ReviewerRepository {
	return &reviewerRepository{BaseRepository: base}
}

func (r *reviewerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Reviewer, error) {
	query := `
		SELECT r.*, COALESCE(w.open_assignments, 0) AS open_assignments
		FROM reviewers r
		LEFT JOIN (
			SELECT assigned_to, COUNT(*) AS open_assignments
			FROM quality_checks
			WHERE status NOT IN ('passed', 'failed')
			GROUP BY assigned_to
		) w ON w.assigned_to = r.id
		WHERE r.id = $1
	`
	var reviewer model.Reviewer
	if err := r.db.GetContext(ctx, &reviewer, query, id); err != nil {
		return nil, err
	}
	return &reviewer, nil
}

func (r *reviewerRepository) List(ctx context.Context) ([]*model.Reviewer, error) {
	query := `
		SELECT r.*, COALESCE(w.open_assignments, 0) AS open_assignments
		FROM reviewers r
		LEFT JOIN (
			SELECT assigned_to, COUNT(*) AS open_assignments
			FROM quality_checks
			WHERE status NOT IN ('passed', 'failed')
			GROUP BY assigned_to
		) w ON w.assigned_to = r.id
		ORDER BY r.name ASC
	`
	var reviewers []*model.Reviewer
	err := r.db.SelectContext(ctx, &reviewers, query)
	return reviewers, err
}

// GetLeastLoaded implements the assignment policy: fewest open assignments
// first, ties broken by the reviewer idle longest.
func (r *reviewerRepository) GetLeastLoaded(ctx context.Context) (*model.Reviewer, error) {
	query := `
		SELECT r.*, COALESCE(w.open_assignments, 0) AS open_assignments
		FROM reviewers r
		LEFT JOIN (
			SELECT assigned_to, COUNT(*) AS open_assignments
			FROM quality_checks
			WHERE status NOT IN ('passed', 'failed')
			GROUP BY assigned_to
		) w ON w.assigned_to = r.id
		WHERE r.active
		ORDER BY COALESCE(w.open_assignments, 0) ASC,
			COALESCE(r.last_assigned_at, 'epoch'::timestamptz) ASC
		LIMIT 1
	`
	var reviewer model.Reviewer
	if err := r.db.GetContext(ctx, &reviewer, query); err != nil {
		return nil, err
	}
	return &reviewer, nil
}

func (r *reviewerRepository) TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE reviewers SET last_assigned_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to touch reviewer: %w", err)
	}
	return nil
}
