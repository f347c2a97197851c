package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type QualityCheckStatus string

const (
	QualityCheckStatusPending       QualityCheckStatus = "pending"
	QualityCheckStatusUnderReview   QualityCheckStatus = "under_review"
	QualityCheckStatusInProgress    QualityCheckStatus = "in_progress"
	QualityCheckStatusNeedsRevision QualityCheckStatus = "needs_revision"
	QualityCheckStatusPassed        QualityCheckStatus = "passed"
	QualityCheckStatusFailed        QualityCheckStatus = "failed"
)

func (s QualityCheckStatus) Valid() bool {
	switch s {
	case QualityCheckStatusPending, QualityCheckStatusUnderReview,
		QualityCheckStatusInProgress, QualityCheckStatusNeedsRevision,
		QualityCheckStatusPassed, QualityCheckStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s QualityCheckStatus) Terminal() bool {
	return s == QualityCheckStatusPassed || s == QualityCheckStatusFailed
}

type QualityCheckPriority string

const (
	PriorityLow    QualityCheckPriority = "low"
	PriorityMedium QualityCheckPriority = "medium"
	PriorityHigh   QualityCheckPriority = "high"
	PriorityUrgent QualityCheckPriority = "urgent"
)

func (p QualityCheckPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ReviewVerdict string

const (
	VerdictApproved      ReviewVerdict = "approved"
	VerdictRejected      ReviewVerdict = "rejected"
	VerdictNeedsRevision ReviewVerdict = "needs_revision"
)

func (v ReviewVerdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictRejected, VerdictNeedsRevision:
		return true
	}
	return false
}

type CheckDimension string

const (
	DimensionPlagiarism     CheckDimension = "plagiarism"
	DimensionGrammar        CheckDimension = "grammar"
	DimensionSEO            CheckDimension = "seo"
	DimensionLinks          CheckDimension = "links"
	DimensionContentQuality CheckDimension = "content_quality"
)

// DimensionResult is the outcome of a single automated check dimension.
type DimensionResult struct {
	Score   float64 `json:"score"`
	Passed  bool    `json:"passed"`
	Details JSONMap `json:"details,omitempty"`
}

// AutomatedChecks maps dimension name to its latest result. Stored as JSONB.
type AutomatedChecks map[CheckDimension]DimensionResult

func (a AutomatedChecks) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *AutomatedChecks) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for AutomatedChecks: %T", src)
	}
	return json.Unmarshal(b, a)
}

// OverallPassed is the informational automated verdict: the AND of every
// dimension's passed flag. It never gates a status transition.
func (a AutomatedChecks) OverallPassed() bool {
	if len(a) == 0 {
		return false
	}
	for _, r := range a {
		if !r.Passed {
			return false
		}
	}
	return true
}

// ManualReview tracks the current (or last) manual review cycle. Stored as JSONB.
type ManualReview struct {
	ReviewStartedAt    *time.Time     `json:"review_started_at,omitempty"`
	ReviewCompletedAt  *time.Time     `json:"review_completed_at,omitempty"`
	FinalVerdict       *ReviewVerdict `json:"final_verdict,omitempty"`
	FinalComments      string         `json:"final_comments,omitempty"`
	RevisionsRequested bool           `json:"revisions_requested"`
}

// Open reports whether a review cycle has started but not completed.
func (m ManualReview) Open() bool {
	return m.ReviewStartedAt != nil && m.ReviewCompletedAt == nil
}

func (m ManualReview) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ManualReview) Scan(src interface{}) error {
	if src == nil {
		*m = ManualReview{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for ManualReview: %T", src)
	}
	return json.Unmarshal(b, m)
}

// Comment is an append-only entry on a quality check.
type Comment struct {
	ID             uuid.UUID `json:"id" db:"id"`
	QualityCheckID uuid.UUID `json:"quality_check_id" db:"quality_check_id"`
	AuthorID       uuid.UUID `json:"author_id" db:"author_id"`
	Text           string    `json:"text" db:"text"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Revision is one accepted resubmission. Numbers increase by exactly one.
type Revision struct {
	ID             uuid.UUID `json:"id" db:"id"`
	QualityCheckID uuid.UUID `json:"quality_check_id" db:"quality_check_id"`
	RevisionNumber int       `json:"revision_number" db:"revision_number"`
	SubmittedBy    uuid.UUID `json:"submitted_by" db:"submitted_by"`
	SubmittedAt    time.Time `json:"submitted_at" db:"submitted_at"`
	Changes        string    `json:"changes" db:"changes"`
}

// QualityCheck is the aggregate root for one review cycle of submitted content.
// All mutations go through the review service; Version backs the optimistic
// concurrency check.
type QualityCheck struct {
	Base
	OrderID         uuid.UUID            `json:"order_id" db:"order_id"`
	WebsiteID       uuid.UUID            `json:"website_id" db:"website_id"`
	SubmittedBy     uuid.UUID            `json:"submitted_by" db:"submitted_by"`
	AssignedTo      *uuid.UUID           `json:"assigned_to,omitempty" db:"assigned_to"`
	Status          QualityCheckStatus   `json:"status" db:"status"`
	Priority        QualityCheckPriority `json:"priority" db:"priority"`
	Deadline        *time.Time           `json:"deadline,omitempty" db:"deadline"`
	AutomatedChecks AutomatedChecks      `json:"automated_checks" db:"automated_checks"`
	ManualReview    ManualReview         `json:"manual_review" db:"manual_review"`
	Tags            pq.StringArray       `json:"tags" db:"tags"`
	Version         int64                `json:"version" db:"version"`

	Comments        []*Comment  `json:"comments,omitempty" db:"-"`
	RevisionHistory []*Revision `json:"revision_history,omitempty" db:"-"`
}

// QualityCheckFilter narrows listing.
type QualityCheckFilter struct {
	Status     QualityCheckStatus   `form:"status"`
	Priority   QualityCheckPriority `form:"priority"`
	AssignedTo *uuid.UUID           `form:"assigned_to"`
	Pagination
	SortOrder
}

type CreateQualityCheckRequest struct {
	OrderID     string     `json:"order_id" binding:"required,uuid"`
	WebsiteID   string     `json:"website_id" binding:"required,uuid"`
	SubmittedBy string     `json:"submitted_by" binding:"required,uuid"`
	Priority    string     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Deadline    *time.Time `json:"deadline"`
	Tags        []string   `json:"tags"`
}

type CompleteReviewRequest struct {
	Verdict  string `json:"verdict" binding:"required"`
	Comments string `json:"comments"`
}

type AddCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

type SubmitRevisionRequest struct {
	Changes string `json:"changes" binding:"required"`
}
