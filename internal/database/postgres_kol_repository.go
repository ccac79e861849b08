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

const kolColumns = `
	id, handle, status, x_user_id, x_user_id_str, x_screen_name, x_name,
	last_post_seen_at, identity_history, created_by, created_at, updated_at, deleted_at
`

type PostgresKOLRepository struct {
	db *sql.DB
}

func NewPostgresKOLRepository(db *sql.DB) *PostgresKOLRepository {
	return &PostgresKOLRepository{db: db}
}

func (r *PostgresKOLRepository) Create(ctx context.Context, kol *models.KOL) error {
	if kol.ID == "" {
		kol.ID = uuid.New().String()
	}
	if kol.Status == "" {
		kol.Status = models.KOLStatusPending
	}

	historyJSON, err := json.Marshal(kol.IdentityHistory)
	if err != nil {
		return fmt.Errorf("marshal identity history: %w", err)
	}

	query := `
		INSERT INTO kols
		(id, handle, status, x_user_id, x_user_id_str, x_screen_name, x_name,
		 last_post_seen_at, identity_history, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		kol.ID,
		kol.Handle,
		kol.Status,
		kol.XUserID,
		kol.XUserIDStr,
		kol.XScreenName,
		kol.XName,
		kol.LastPostSeenAt,
		historyJSON,
		kol.CreatedBy,
	).Scan(&kol.CreatedAt, &kol.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return models.ErrAlreadyExists
	}
	return err
}

func (r *PostgresKOLRepository) GetByID(ctx context.Context, id string) (*models.KOL, error) {
	query := `SELECT ` + kolColumns + ` FROM kols WHERE id = $1`
	return scanKOL(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresKOLRepository) GetByHandle(ctx context.Context, handle string) (*models.KOL, error) {
	query := `SELECT ` + kolColumns + ` FROM kols WHERE handle = $1 AND deleted_at IS NULL`
	return scanKOL(r.db.QueryRowContext(ctx, query, handle))
}

func (r *PostgresKOLRepository) ListByHandles(ctx context.Context, handles []string) ([]*models.KOL, error) {
	if len(handles) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + kolColumns + `
		FROM kols
		WHERE handle = ANY($1) AND deleted_at IS NULL
		ORDER BY handle
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(handles))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKOLs(rows)
}

func (r *PostgresKOLRepository) ListAll(ctx context.Context, includeDeleted bool) ([]*models.KOL, error) {
	query := `SELECT ` + kolColumns + ` FROM kols`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKOLs(rows)
}

// ApplyPostUpdates applies the post-observation batch in one transaction: the
// freshness timestamp, the optional pending->active promotion, the optional
// identity correction with its append-only history snapshot, and the observed
// tweet. A replayed tweet ID leaves the stored history untouched.
func (r *PostgresKOLRepository) ApplyPostUpdates(ctx context.Context, updates []models.KOLPostUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin post update transaction: %w", err)
	}
	defer tx.Rollback()

	for _, update := range updates {
		if err := applyPostUpdate(ctx, tx, update); err != nil {
			return fmt.Errorf("apply post update for kol %s: %w", update.KOLID, err)
		}
	}

	return tx.Commit()
}

func applyPostUpdate(ctx context.Context, tx *sql.Tx, update models.KOLPostUpdate) error {
	if update.Identity != nil {
		snapshotJSON, err := json.Marshal(update.Identity)
		if err != nil {
			return fmt.Errorf("marshal identity snapshot: %w", err)
		}

		query := `
			UPDATE kols SET
				last_post_seen_at = $2,
				status = CASE WHEN $3 AND status = 'pending' THEN 'active' ELSE status END,
				x_user_id = $4,
				x_user_id_str = $5,
				x_screen_name = $6,
				x_name = $7,
				identity_history = identity_history || $8::jsonb,
				updated_at = NOW()
			WHERE id = $1
		`
		_, err = tx.ExecContext(ctx, query,
			update.KOLID,
			update.LastPostSeenAt,
			update.Activate,
			update.Identity.XUserID,
			update.Identity.XUserIDStr,
			update.Identity.XScreenName,
			update.Identity.XName,
			snapshotJSON,
		)
		if err != nil {
			return err
		}
	} else {
		query := `
			UPDATE kols SET
				last_post_seen_at = $2,
				status = CASE WHEN $3 AND status = 'pending' THEN 'active' ELSE status END,
				updated_at = NOW()
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, query, update.KOLID, update.LastPostSeenAt, update.Activate); err != nil {
			return err
		}
	}

	if update.Tweet == nil {
		return nil
	}

	query := `
		INSERT INTO kol_tweets (id, kol_id, tweet_id, user_id_str, text, posted_at, lang, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (kol_id, tweet_id) DO NOTHING
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.New().String(),
		update.KOLID,
		update.Tweet.TweetID,
		update.Tweet.UserIDStr,
		update.Tweet.Text,
		update.Tweet.CreatedAt,
		update.Tweet.Lang,
		[]byte(update.Tweet.Raw),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKOLInto(s rowScanner, kol *models.KOL) error {
	var historyJSON []byte

	err := s.Scan(
		&kol.ID,
		&kol.Handle,
		&kol.Status,
		&kol.XUserID,
		&kol.XUserIDStr,
		&kol.XScreenName,
		&kol.XName,
		&kol.LastPostSeenAt,
		&historyJSON,
		&kol.CreatedBy,
		&kol.CreatedAt,
		&kol.UpdatedAt,
		&kol.DeletedAt,
	)
	if err != nil {
		return err
	}

	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &kol.IdentityHistory); err != nil {
			return fmt.Errorf("unmarshal identity history: %w", err)
		}
	}
	return nil
}

func scanKOL(row *sql.Row) (*models.KOL, error) {
	var kol models.KOL
	err := scanKOLInto(row, &kol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &kol, nil
}

func scanKOLs(rows *sql.Rows) ([]*models.KOL, error) {
	var kols []*models.KOL
	for rows.Next() {
		var kol models.KOL
		if err := scanKOLInto(rows, &kol); err != nil {
			return nil, err
		}
		kols = append(kols, &kol)
	}
	return kols, rows.Err()
}
