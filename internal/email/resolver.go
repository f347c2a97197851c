package email

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/repository"
)

// ReviewerResolver resolves addresses from the reviewer roster. Addresses for
// other users belong to the account collaborator and resolve to empty here.
type ReviewerResolver struct {
	reviewers repository.ReviewerRepository
}

func NewReviewerResolver(reviewers repository.ReviewerRepository) *ReviewerResolver {
	return &ReviewerResolver{reviewers: reviewers}
}

func (r *ReviewerResolver) EmailFor(ctx context.Context, userID uuid.UUID) (string, error) {
	reviewer, err := r.reviewers.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return reviewer.Email, nil
}
