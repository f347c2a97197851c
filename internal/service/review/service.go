// Package review owns the quality check lifecycle. Every mutation validates
// the current status against the allowed transitions and goes through an
// optimistic version check, so concurrent writers on one aggregate are
// serialized.
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
	"github.com/contentforge/review-api/internal/service/checks"
	eventsvc "github.com/contentforge/review-api/internal/service/event"
	apperrors "github.com/contentforge/review-api/pkg/errors"
	"github.com/contentforge/review-api/pkg/logger"
	"github.com/contentforge/review-api/pkg/metrics"
)

const (
	defaultCheckTimeout = 30 * time.Second
	checkRetries        = 1
)

// CheckRunner executes the automated checks. The in-process aggregator
// satisfies it; an external scoring service would too.
type CheckRunner interface {
	Run(ctx context.Context, content checks.Content) (model.AutomatedChecks, error)
}

type Service interface {
	Create(ctx context.Context, req *model.CreateQualityCheckRequest) (*model.QualityCheck, error)
	Get(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error)
	List(ctx context.Context, filter *model.QualityCheckFilter) ([]*model.QualityCheck, int64, error)
	RunAutomatedChecks(ctx context.Context, id uuid.UUID, content checks.Content) (*model.QualityCheck, error)
	AssignReviewer(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error)
	StartManualReview(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error)
	CompleteManualReview(ctx context.Context, id uuid.UUID, verdict model.ReviewVerdict, comments string) (*model.QualityCheck, error)
	AddComment(ctx context.Context, id, authorID uuid.UUID, text string) (*model.Comment, error)
	SubmitRevision(ctx context.Context, id, submittedBy uuid.UUID, changes string) (*model.QualityCheck, error)
	ListReviewers(ctx context.Context) ([]*model.Reviewer, error)
}

type Config struct {
	CheckTimeout time.Duration
}

type service struct {
	repo      repository.QualityCheckRepository
	reviewers repository.ReviewerRepository
	runner    CheckRunner
	events    eventsvc.Publisher
	logger    *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

func NewService(
	repo repository.QualityCheckRepository,
	reviewers repository.ReviewerRepository,
	runner CheckRunner,
	events eventsvc.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) Service {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	return &service{
		repo:      repo,
		reviewers: reviewers,
		runner:    runner,
		events:    events,
		logger:    log,
		metrics:   m,
		cfg:       cfg,
	}
}

func (s *service) Create(ctx context.Context, req *model.CreateQualityCheckRequest) (*model.QualityCheck, error) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, apperrors.Validation("invalid order id", err)
	}
	websiteID, err := uuid.Parse(req.WebsiteID)
	if err != nil {
		return nil, apperrors.Validation("invalid website id", err)
	}
	submittedBy, err := uuid.Parse(req.SubmittedBy)
	if err != nil {
		return nil, apperrors.Validation("invalid submitter id", err)
	}

	priority := model.QualityCheckPriority(req.Priority)
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown priority %q", req.Priority), nil)
	}

	check := &model.QualityCheck{
		Base:        model.Base{ID: uuid.New()},
		OrderID:     orderID,
		WebsiteID:   websiteID,
		SubmittedBy: submittedBy,
		Status:      model.QualityCheckStatusPending,
		Priority:    priority,
		Deadline:    req.Deadline,
		Tags:        req.Tags,
	}
	if err := s.repo.Create(ctx, check); err != nil {
		return nil, apperrors.Internal(err)
	}
	s.countTransition("", check.Status)
	return check, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error) {
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, filter *model.QualityCheckFilter) ([]*model.QualityCheck, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.Validation(fmt.Sprintf("unknown status %q", filter.Status), nil)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, 0, apperrors.Validation(fmt.Sprintf("unknown priority %q", filter.Priority), nil)
	}
	checks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return checks, total, nil
}

// RunAutomatedChecks refreshes the automated snapshot. It is idempotent and
// never changes status; a failed run leaves the prior snapshot in place.
func (s *service) RunAutomatedChecks(ctx context.Context, id uuid.UUID, content checks.Content) (*model.QualityCheck, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	results, err := s.runChecks(ctx, content)
	if err != nil {
		s.countCheckRun("failed")
		return nil, apperrors.Internal(fmt.Errorf("automated checks failed: %w", err))
	}
	s.countCheckRun("success")

	check.AutomatedChecks = results
	if err := s.update(ctx, check); err != nil {
		return nil, err
	}
	return check, nil
}

// runChecks applies the timeout and a single retry on transient failure.
func (s *service) runChecks(ctx context.Context, content checks.Content) (model.AutomatedChecks, error) {
	var lastErr error
	for attempt := 0; attempt <= checkRetries; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
		results, err := s.runner.Run(runCtx, content)
		cancel()
		if err == nil {
			return results, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (s *service) AssignReviewer(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != model.QualityCheckStatusPending {
		return nil, apperrors.InvalidStateTransition(
			fmt.Sprintf("cannot assign a reviewer while check is %s", check.Status))
	}

	reviewer, err := s.reviewers.GetLeastLoaded(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Validation("no active reviewers available", err)
		}
		return nil, apperrors.Internal(err)
	}

	from := check.Status
	check.AssignedTo = &reviewer.ID
	check.Status = model.QualityCheckStatusUnderReview

	event, err := s.events.DispatchEvent(&model.NotificationEvent{
		UserIDs:   []uuid.UUID{reviewer.ID},
		Category:  model.CategorySystem,
		Type:      model.TypeReviewAssigned,
		Title:     "New review assignment",
		Message:   fmt.Sprintf("Quality check %s was assigned to you", check.ID),
		Priority:  string(check.Priority),
		ActionURL: fmt.Sprintf("/quality-checks/%s", check.ID),
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.applyWithEvent(ctx, check, event); err != nil {
		return nil, err
	}
	if err := s.reviewers.TouchAssigned(ctx, reviewer.ID, time.Now()); err != nil {
		s.logger.Error(err, "failed to record assignment time", "reviewer_id", reviewer.ID.String())
	}
	s.countTransition(from, check.Status)
	return check, nil
}

func (s *service) StartManualReview(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != model.QualityCheckStatusPending && check.Status != model.QualityCheckStatusUnderReview {
		return nil, apperrors.InvalidStateTransition(
			fmt.Sprintf("cannot start a manual review while check is %s", check.Status))
	}
	if check.ManualReview.Open() {
		return nil, apperrors.InvalidStateTransition("a manual review cycle is already open")
	}

	from := check.Status
	now := time.Now()
	check.ManualReview = model.ManualReview{ReviewStartedAt: &now}
	check.Status = model.QualityCheckStatusInProgress

	if err := s.update(ctx, check); err != nil {
		return nil, err
	}
	s.countTransition(from, check.Status)
	return check, nil
}

func (s *service) CompleteManualReview(ctx context.Context, id uuid.UUID, verdict model.ReviewVerdict, comments string) (*model.QualityCheck, error) {
	if !verdict.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown verdict %q", verdict), nil)
	}

	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != model.QualityCheckStatusInProgress {
		return nil, apperrors.InvalidStateTransition(
			fmt.Sprintf("cannot complete a review that hasn't started (status %s)", check.Status))
	}

	from := check.Status
	now := time.Now()
	check.ManualReview.ReviewCompletedAt = &now
	check.ManualReview.FinalVerdict = &verdict
	check.ManualReview.FinalComments = comments

	var eventType, title string
	switch verdict {
	case model.VerdictApproved:
		check.Status = model.QualityCheckStatusPassed
		eventType, title = model.TypeReviewCompleted, "Your content passed review"
	case model.VerdictRejected:
		check.Status = model.QualityCheckStatusFailed
		eventType, title = model.TypeReviewCompleted, "Your content did not pass review"
	case model.VerdictNeedsRevision:
		check.Status = model.QualityCheckStatusNeedsRevision
		check.ManualReview.RevisionsRequested = true
		eventType, title = model.TypeRevisionRequested, "Revisions requested on your content"
	}

	event, err := s.events.DispatchEvent(&model.NotificationEvent{
		UserIDs:  []uuid.UUID{check.SubmittedBy},
		Category: model.CategoryWebsites,
		Type:     eventType,
		Title:    title,
		Message:  comments,
		Data: model.JSONMap{
			"quality_check_id": check.ID.String(),
			"verdict":          string(verdict),
		},
		Priority:  string(check.Priority),
		ActionURL: fmt.Sprintf("/quality-checks/%s", check.ID),
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.applyWithEvent(ctx, check, event); err != nil {
		return nil, err
	}
	s.countTransition(from, check.Status)
	return check, nil
}

// AddComment appends to the comment log. Allowed in every state; never
// changes status.
func (s *service) AddComment(ctx context.Context, id, authorID uuid.UUID, text string) (*model.Comment, error) {
	if text == "" {
		return nil, apperrors.Validation("comment text is required", nil)
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:             uuid.New(),
		QualityCheckID: id,
		AuthorID:       authorID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, apperrors.Internal(err)
	}
	return comment, nil
}

func (s *service) SubmitRevision(ctx context.Context, id, submittedBy uuid.UUID, changes string) (*model.QualityCheck, error) {
	if changes == "" {
		return nil, apperrors.Validation("revision changes are required", nil)
	}

	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != model.QualityCheckStatusNeedsRevision {
		return nil, apperrors.InvalidStateTransition(
			fmt.Sprintf("cannot submit a revision while check is %s", check.Status))
	}

	nextNumber := 1
	for _, rev := range check.RevisionHistory {
		if rev.RevisionNumber >= nextNumber {
			nextNumber = rev.RevisionNumber + 1
		}
	}

	revision := &model.Revision{
		ID:             uuid.New(),
		QualityCheckID: check.ID,
		RevisionNumber: nextNumber,
		SubmittedBy:    submittedBy,
		SubmittedAt:    time.Now(),
		Changes:        changes,
	}

	from := check.Status
	check.ManualReview.FinalVerdict = nil
	check.Status = model.QualityCheckStatusUnderReview

	if err := s.repo.UpdateWithRevision(ctx, check, revision); err != nil {
		return nil, s.mapUpdateErr(err)
	}
	check.RevisionHistory = append(check.RevisionHistory, revision)
	s.countTransition(from, check.Status)
	return check, nil
}

func (s *service) ListReviewers(ctx context.Context) ([]*model.Reviewer, error) {
	reviewers, err := s.reviewers.List(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return reviewers, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*model.QualityCheck, error) {
	check, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("quality check", err)
		}
		return nil, apperrors.Internal(err)
	}
	return check, nil
}

func (s *service) update(ctx context.Context, check *model.QualityCheck) error {
	return s.mapUpdateErr(s.repo.Update(ctx, check))
}

func (s *service) applyWithEvent(ctx context.Context, check *model.QualityCheck, event *model.OutboxEvent) error {
	return s.mapUpdateErr(s.repo.UpdateWithEvent(ctx, check, event))
}

func (s *service) mapUpdateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		if s.metrics != nil {
			s.metrics.ConcurrencyConflicts.Inc()
		}
		return apperrors.ConcurrencyConflict("quality check")
	}
	return apperrors.Internal(err)
}

func (s *service) countTransition(from, to model.QualityCheckStatus) {
	if s.metrics != nil {
		s.metrics.ReviewTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (s *service) countCheckRun(outcome string) {
	if s.metrics != nil {
		s.metrics.AutomatedCheckRuns.WithLabelValues(outcome).Inc()
	}
}
