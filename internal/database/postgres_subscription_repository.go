package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kolwatch/kolwatch/internal/models"
)

const subscriptionColumns = `
	id, kol_id, handle, user_id, webhook_url, api_metadata, status,
	created_at, updated_at, deleted_at
`

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	metadataJSON, err := json.Marshal(sub.APIMetadata)
	if err != nil {
		return fmt.Errorf("marshal api metadata: %w", err)
	}

	query := `
		INSERT INTO subscriptions (id, kol_id, handle, user_id, webhook_url, api_metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		sub.ID,
		sub.KOLID,
		sub.Handle,
		sub.UserID,
		sub.WebhookURL,
		metadataJSON,
		sub.Status,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return models.ErrAlreadyExists
	}
	return err
}

func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, userID, id string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	return scanSubscription(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *PostgresSubscriptionRepository) GetByUserAndHandle(ctx context.Context, userID, handle string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND handle = $2 AND deleted_at IS NULL
	`
	return scanSubscription(r.db.QueryRowContext(ctx, query, userID, handle))
}

func (r *PostgresSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND deleted_at IS NULL`,
		userID,
	).Scan(&count)
	return count, err
}

func (r *PostgresSubscriptionRepository) ListDeliverableByKOLIDs(ctx context.Context, kolIDs []string) ([]*models.Subscription, error) {
	if len(kolIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE kol_id = ANY($1)
		  AND deleted_at IS NULL
		  AND status IN ('active', 'pending')
		  AND webhook_url <> ''
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(kolIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	metadataJSON, err := json.Marshal(sub.APIMetadata)
	if err != nil {
		return fmt.Errorf("marshal api metadata: %w", err)
	}

	query := `
		UPDATE subscriptions SET
			webhook_url = $2,
			api_metadata = $3,
			status = $4,
			deleted_at = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		sub.ID,
		sub.WebhookURL,
		metadataJSON,
		sub.Status,
		sub.DeletedAt,
	).Scan(&sub.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func scanSubscriptionInto(s rowScanner, sub *models.Subscription) error {
	var metadataJSON []byte

	err := s.Scan(
		&sub.ID,
		&sub.KOLID,
		&sub.Handle,
		&sub.UserID,
		&sub.WebhookURL,
		&metadataJSON,
		&sub.Status,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.DeletedAt,
	)
	if err != nil {
		return err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &sub.APIMetadata); err != nil {
			return fmt.Errorf("unmarshal api metadata: %w", err)
		}
	}
	return nil
}

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var sub models.Subscription
	err := scanSubscriptionInto(row, &sub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := scanSubscriptionInto(rows, &sub); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}
