package model

import (
	"time"

	"github.com/google/uuid"
)

// Reviewer is a member of the review team eligible for assignment.
type Reviewer struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	Active         bool       `json:"active" db:"active"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty" db:"last_assigned_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`

	// OpenAssignments is the number of non-terminal checks currently
	// assigned to the reviewer. Computed, not stored.
	OpenAssignments int `json:"open_assignments" db:"open_assignments"`
}
