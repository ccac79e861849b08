package models

import (
	"context"
	"time"
)

// KOLStatus tracks the lifecycle of a monitored account
type KOLStatus string

const (
	KOLStatusPending KOLStatus = "pending"
	KOLStatusActive  KOLStatus = "active"
	KOLStatusDeleted KOLStatus = "deleted"
)

// XIdentitySnapshot is one external identity observed for a KOL. The upstream
// handle-to-numeric-ID mapping can drift, so prior snapshots are kept append-only.
type XIdentitySnapshot struct {
	XUserID     int64     `json:"x_user_id"`
	XUserIDStr  string    `json:"x_user_id_str"`
	XScreenName string    `json:"x_screen_name"`
	XName       string    `json:"x_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KOL represents a social media account being monitored for new posts.
// The external identity fields are nullable: they are only filled in the first
// time a real notification is matched against the account.
type KOL struct {
	ID              string              `json:"id"`
	Handle          string              `json:"handle"`
	Status          KOLStatus           `json:"status"`
	XUserID         *int64              `json:"x_user_id,omitempty"`
	XUserIDStr      *string             `json:"x_user_id_str,omitempty"`
	XScreenName     *string             `json:"x_screen_name,omitempty"`
	XName           *string             `json:"x_name,omitempty"`
	LastPostSeenAt  *time.Time          `json:"last_post_seen_at,omitempty"`
	IdentityHistory []XIdentitySnapshot `json:"identity_history,omitempty"`
	CreatedBy       string              `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	DeletedAt       *time.Time          `json:"deleted_at,omitempty"`
}

// Deleted reports whether the KOL has been soft-deleted.
func (k *KOL) Deleted() bool {
	return k.Status == KOLStatusDeleted || k.DeletedAt != nil
}

// KOLPostUpdate is one per-KOL state mutation applied after a post has been
// observed: the freshness timestamp, the pending->active promotion, an optional
// identity correction, and the observed tweet appended to the KOL's history.
type KOLPostUpdate struct {
	KOLID          string
	LastPostSeenAt time.Time
	Activate       bool
	Identity       *XIdentitySnapshot
	Tweet          *ParsedTweet
}

// KOLRepository defines operations for monitored accounts
type KOLRepository interface {
	// Create stores a new KOL, failing with ErrAlreadyExists when a
	// non-deleted KOL with the same handle exists
	Create(ctx context.Context, kol *KOL) error

	// GetByID retrieves a KOL by ID, soft-deleted included
	GetByID(ctx context.Context, id string) (*KOL, error)

	// GetByHandle retrieves the non-deleted KOL with the given canonical handle
	GetByHandle(ctx context.Context, handle string) (*KOL, error)

	// ListByHandles retrieves all non-deleted KOLs whose handle is in the set
	ListByHandles(ctx context.Context, handles []string) ([]*KOL, error)

	// ListAll returns every KOL, optionally including soft-deleted ones
	ListAll(ctx context.Context, includeDeleted bool) ([]*KOL, error)

	// ApplyPostUpdates applies a batch of post-observation updates
	ApplyPostUpdates(ctx context.Context, updates []KOLPostUpdate) error
}
