package models

import (
	"context"
	"encoding/json"
	"time"
)

// WebhookResponse describes the HTTP response of one webhook delivery
type WebhookResponse struct {
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"status_text"`
	URL        string `json:"url"`
}

// WebhookReceipt is the immutable audit record of one delivery attempt.
// Exactly one receipt is written per attempt, success or failure; receipts
// double as the billing trail. The deleted_at field exists for schema symmetry
// with the other aggregates and is never set in the normal flow.
type WebhookReceipt struct {
	ID             string           `json:"id"`
	SubscriptionID string           `json:"subscription_id"`
	KOLID          string           `json:"kol_id"`
	UserID         string           `json:"user_id"`
	PayloadSent    json.RawMessage  `json:"payload_sent"`
	HitAt          time.Time        `json:"hit_at"`
	Response       *WebhookResponse `json:"response,omitempty"`
	ErrorMessage   *string          `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	DeletedAt      *time.Time       `json:"deleted_at,omitempty"`
}

// ReceiptRepository defines operations for webhook receipts
type ReceiptRepository interface {
	// CreateWithPromotion writes one receipt and, when promoteSubscriptionID is
	// non-empty, flips that subscription from pending to active in the same
	// transaction
	CreateWithPromotion(ctx context.Context, receipt *WebhookReceipt, promoteSubscriptionID string) error

	// ListByUser returns receipts owned by the user, newest first
	ListByUser(ctx context.Context, userID string, limit int) ([]*WebhookReceipt, error)
}
