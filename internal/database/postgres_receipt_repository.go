package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kolwatch/kolwatch/internal/models"
)

type PostgresReceiptRepository struct {
	db *sql.DB
}

func NewPostgresReceiptRepository(db *sql.DB) *PostgresReceiptRepository {
	return &PostgresReceiptRepository{db: db}
}

// CreateWithPromotion writes the receipt and, when promoteSubscriptionID is
// non-empty, promotes that subscription from pending to active. Both land in
// one transaction so a crash never leaves a promoted subscription without its
// first receipt.
func (r *PostgresReceiptRepository) CreateWithPromotion(ctx context.Context, receipt *models.WebhookReceipt, promoteSubscriptionID string) error {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}

	var responseJSON []byte
	if receipt.Response != nil {
		var err error
		responseJSON, err = json.Marshal(receipt.Response)
		if err != nil {
			return fmt.Errorf("marshal webhook response: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin receipt transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO webhook_receipts
		(id, subscription_id, kol_id, user_id, payload_sent, hit_at, response, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = tx.QueryRowContext(ctx, query,
		receipt.ID,
		receipt.SubscriptionID,
		receipt.KOLID,
		receipt.UserID,
		[]byte(receipt.PayloadSent),
		receipt.HitAt,
		responseJSON,
		receipt.ErrorMessage,
	).Scan(&receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook receipt: %w", err)
	}

	if promoteSubscriptionID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = 'active', updated_at = NOW()
			WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
		`, promoteSubscriptionID)
		if err != nil {
			return fmt.Errorf("promote subscription %s: %w", promoteSubscriptionID, err)
		}
	}

	return tx.Commit()
}

func (r *PostgresReceiptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.WebhookReceipt, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, subscription_id, kol_id, user_id, payload_sent, hit_at,
		       response, error_message, created_at, deleted_at
		FROM webhook_receipts
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY hit_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.WebhookReceipt
	for rows.Next() {
		var receipt models.WebhookReceipt
		var payload, responseJSON []byte

		err := rows.Scan(
			&receipt.ID,
			&receipt.SubscriptionID,
			&receipt.KOLID,
			&receipt.UserID,
			&payload,
			&receipt.HitAt,
			&responseJSON,
			&receipt.ErrorMessage,
			&receipt.CreatedAt,
			&receipt.DeletedAt,
		)
		if err != nil {
			return nil, err
		}

		receipt.PayloadSent = json.RawMessage(payload)
		if len(responseJSON) > 0 {
			var response models.WebhookResponse
			if err := json.Unmarshal(responseJSON, &response); err != nil {
				return nil, fmt.Errorf("unmarshal webhook response: %w", err)
			}
			receipt.Response = &response
		}

		receipts = append(receipts, &receipt)
	}

	return receipts, rows.Err()
}
