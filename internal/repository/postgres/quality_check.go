package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
)

type qualityCheckRepository struct {
	*BaseRepository
}

func NewQualityCheckRepository(base *BaseRepository) repository.QualityCheckRepository {
	return &qualityCheckRepository{BaseRepository: base}
}

func (r *qualityCheckRepository) Create(ctx context.Context, check *model.QualityCheck) error {
	query := `
		INSERT INTO quality_checks (
			id, order_id, website_id, submitted_by, assigned_to, status, priority,
			deadline, automated_checks, manual_review, tags, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	check.CreatedAt = time.Now()
	check.UpdatedAt = check.CreatedAt
	check.Version = 1

	_, err := r.db.ExecContext(ctx, query,
		check.ID,
		check.OrderID,
		check.WebsiteID,
		check.SubmittedBy,
		check.AssignedTo,
		check.Status,
		check.Priority,
		check.Deadline,
		check.AutomatedChecks,
		check.ManualReview,
		check.Tags,
		check.Version,
		check.CreatedAt,
		check.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quality check: %w", err)
	}
	return nil
}

func (r *qualityCheckRepository) Get(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error) {
	query := `SELECT * FROM quality_checks WHERE id = $1`
	var check model.QualityCheck
	if err := r.db.GetContext(ctx, &check, query, id); err != nil {
		return nil, err
	}

	comments, err := r.ListComments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	check.Comments = comments

	revisions, err := r.ListRevisions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load revisions: %w", err)
	}
	check.RevisionHistory = revisions

	return &check, nil
}

func (r *qualityCheckRepository) List(ctx context.Context, filter *model.QualityCheckFilter) ([]*model.QualityCheck, int64, error) {
	filter.Normalize()

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Priority != "" {
		where += fmt.Sprintf(" AND priority = $%d", idx)
		args = append(args, filter.Priority)
		idx++
	}
	if filter.AssignedTo != nil {
		where += fmt.Sprintf(" AND assigned_to = $%d", idx)
		args = append(args, *filter.AssignedTo)
		idx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM quality_checks"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count quality checks: %w", err)
	}

	orderBy := "created_at"
	switch filter.Field {
	case "priority", "deadline", "status", "updated_at":
		orderBy = filter.Field
	}
	dir := "DESC"
	if filter.Dir == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(
		"SELECT * FROM quality_checks%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, orderBy, dir, idx, idx+1,
	)
	args = append(args, filter.PageSize, filter.Offset())

	var checks []*model.QualityCheck
	if err := r.db.SelectContext(ctx, &checks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list quality checks: %w", err)
	}
	return checks, total, nil
}

// updateTx applies an optimistic update inside tx. The WHERE clause on the
// previous version is what serializes concurrent writers.
func (r *qualityCheckRepository) updateTx(ctx context.Context, tx *sqlx.Tx, check *model.QualityCheck) error {
	query := `
		UPDATE quality_checks
		SET status = $1, assigned_to = $2, automated_checks = $3, manual_review = $4,
			priority = $5, deadline = $6, tags = $7, version = version + 1, updated_at = $8
		WHERE id = $9 AND version = $10
	`
	check.UpdatedAt = time.Now()
	res, err := tx.ExecContext(ctx, query,
		check.Status,
		check.AssignedTo,
		check.AutomatedChecks,
		check.ManualReview,
		check.Priority,
		check.Deadline,
		check.Tags,
		check.UpdatedAt,
		check.ID,
		check.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update quality check: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrVersionConflict
	}
	check.Version++
	return nil
}

func (r *qualityCheckRepository) Update(ctx context.Context, check *model.QualityCheck) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.updateTx(ctx, tx, check)
	})
}

func (r *qualityCheckRepository) UpdateWithEvent(ctx context.Context, check *model.QualityCheck, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.updateTx(ctx, tx, check); err != nil {
			return err
		}
		return createOutboxTx(ctx, tx, event)
	})
}

func (r *qualityCheckRepository) UpdateWithRevision(ctx context.Context, check *model.QualityCheck, revision *model.Revision) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.updateTx(ctx, tx, check); err != nil {
			return err
		}
		query := `
			INSERT INTO quality_check_revisions (
				id, quality_check_id, revision_number, submitted_by, submitted_at, changes
			) VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.ExecContext(ctx, query,
			revision.ID,
			revision.QualityCheckID,
			revision.RevisionNumber,
			revision.SubmittedBy,
			revision.SubmittedAt,
			revision.Changes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert revision: %w", err)
		}
		return nil
	})
}

func (r *qualityCheckRepository) AddComment(ctx context.Context, comment *model.Comment) error {
	query := `
		INSERT INTO quality_check_comments (id, quality_check_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		comment.ID,
		comment.QualityCheckID,
		comment.AuthorID,
		comment.Text,
		comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

func (r *qualityCheckRepository) ListComments(ctx context.Context, checkID uuid.UUID) ([]*model.Comment, error) {
	query := `
		SELECT * FROM quality_check_comments
		WHERE quality_check_id = $1
		ORDER BY created_at ASC, id ASC
	`
	var comments []*model.Comment
	err := r.db.SelectContext(ctx, &comments, query, checkID)
	return comments, err
}

func (r *qualityCheckRepository) ListRevisions(ctx context.Context, checkID uuid.UUID) ([]*model.Revision, error) {
	query := `
		SELECT * FROM quality_check_revisions
		WHERE quality_check_id = $1
		ORDER BY revision_number ASC
	`
	var revisions []*model.Revision
	err := r.db.SelectContext(ctx, &revisions, query, checkID)
	return revisions, err
}
