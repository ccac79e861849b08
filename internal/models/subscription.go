package models

import (
	"context"
	"time"
)

// SubscriptionStatus tracks the lifecycle of a webhook subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending SubscriptionStatus = "pending"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusDeleted SubscriptionStatus = "deleted"
)

// Subscription registers one user's interest in a KOL's new-post events.
// APIMetadata is a caller-supplied string/number bag echoed back on list/edit.
type Subscription struct {
	ID          string                 `json:"id"`
	KOLID       string                 `json:"kol_id"`
	Handle      string                 `json:"handle"`
	UserID      string                 `json:"user_id"`
	WebhookURL  string                 `json:"webhook_url"`
	APIMetadata map[string]interface{} `json:"api_metadata,omitempty"`
	Status      SubscriptionStatus     `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	DeletedAt   *time.Time             `json:"deleted_at,omitempty"`
}

// Deliverable reports whether webhook deliveries should be attempted for the
// subscription. Pending subscriptions are deliverable: their first attempted
// delivery is what activates them.
func (s *Subscription) Deliverable() bool {
	if s.WebhookURL == "" || s.DeletedAt != nil {
		return false
	}
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusPending
}

// SubscriptionRepository defines operations for webhook subscriptions
type SubscriptionRepository interface {
	// Create stores a new subscription
	Create(ctx context.Context, sub *Subscription) error

	// GetByID retrieves a non-deleted subscription owned by the given user
	GetByID(ctx context.Context, userID, id string) (*Subscription, error)

	// GetByUserAndHandle retrieves the user's non-deleted subscription for a handle
	GetByUserAndHandle(ctx context.Context, userID, handle string) (*Subscription, error)

	// ListByUser returns all non-deleted subscriptions owned by the user
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)

	// CountByUser returns the number of non-deleted subscriptions owned by the user
	CountByUser(ctx context.Context, userID string) (int, error)

	// ListDeliverableByKOLIDs returns active and pending subscriptions with a
	// non-empty webhook URL for any of the given KOLs
	ListDeliverableByKOLIDs(ctx context.Context, kolIDs []string) ([]*Subscription, error)

	// Update persists webhook URL, metadata, status and soft-delete changes
	Update(ctx context.Context, sub *Subscription) error
}
