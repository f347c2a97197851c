package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusUnread   NotificationStatus = "unread"
	NotificationStatusRead     NotificationStatus = "read"
	NotificationStatusArchived NotificationStatus = "archived"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationStatusUnread, NotificationStatusRead, NotificationStatusArchived:
		return true
	}
	return false
}

type NotificationCategory string

const (
	CategoryOrders   NotificationCategory = "orders"
	CategoryPayments NotificationCategory = "payments"
	CategoryWebsites NotificationCategory = "websites"
	CategoryMessages NotificationCategory = "messages"
	CategorySupport  NotificationCategory = "support"
	CategorySystem   NotificationCategory = "system"
)

// AllCategories lists every known category, used for preference defaults.
var AllCategories = []NotificationCategory{
	CategoryOrders, CategoryPayments, CategoryWebsites,
	CategoryMessages, CategorySupport, CategorySystem,
}

func (c NotificationCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Notification event types (closed set).
const (
	TypeOrderCreated      = "order_created"
	TypeOrderCompleted    = "order_completed"
	TypePaymentReceived   = "payment_received"
	TypeMessageReceived   = "message_received"
	TypeWebsiteApproved   = "website_approved"
	TypeReviewCompleted   = "review_completed"
	TypeRevisionRequested = "revision_requested"
	TypeReviewAssigned    = "review_assigned"
	TypeSystemAlert       = "system_alert"
)

// Notification is a single addressed, timestamped fact delivered to one user.
type Notification struct {
	ID        uuid.UUID            `json:"id" db:"id"`
	UserID    uuid.UUID            `json:"user_id" db:"user_id"`
	Category  NotificationCategory `json:"category" db:"category"`
	Type      string               `json:"type" db:"type"`
	Title     string               `json:"title" db:"title"`
	Message   string               `json:"message" db:"message"`
	Data      JSONMap              `json:"data,omitempty" db:"data"`
	Priority  string               `json:"priority" db:"priority"`
	ActionURL *string              `json:"action_url,omitempty" db:"action_url"`
	Status    NotificationStatus   `json:"status" db:"status"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" db:"updated_at"`
}

// NotificationFilter narrows listing. Archived rows are excluded unless the
// filter asks for them.
type NotificationFilter struct {
	Status NotificationStatus `form:"status"`
	Pagination
}

// NotificationEvent is the shape every producer puts on the event bus.
type NotificationEvent struct {
	ID        uuid.UUID            `json:"id"`
	UserIDs   []uuid.UUID          `json:"user_ids"`
	Category  NotificationCategory `json:"category"`
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Data      JSONMap              `json:"data,omitempty"`
	Priority  string               `json:"priority"`
	ActionURL string               `json:"action_url,omitempty"`
	EmittedAt time.Time            `json:"emitted_at"`
}
