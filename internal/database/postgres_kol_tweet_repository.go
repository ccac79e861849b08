package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/kolwatch/kolwatch/internal/models"
)

type PostgresKOLTweetRepository struct {
	db *sql.DB
}

func NewPostgresKOLTweetRepository(db *sql.DB) *PostgresKOLTweetRepository {
	return &PostgresKOLTweetRepository{db: db}
}

func (r *PostgresKOLTweetRepository) ListByKOL(ctx context.Context, kolID string, limit int) ([]*models.KOLTweet, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kol_id, tweet_id, user_id_str, text, posted_at, lang, raw, created_at
		FROM kol_tweets
		WHERE kol_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, kolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tweets []*models.KOLTweet
	for rows.Next() {
		var tweet models.KOLTweet
		var lang sql.NullString
		var raw []byte

		err := rows.Scan(
			&tweet.ID,
			&tweet.KOLID,
			&tweet.TweetID,
			&tweet.UserIDStr,
			&tweet.Text,
			&tweet.PostedAt,
			&lang,
			&raw,
			&tweet.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		tweet.Lang = lang.String
		tweet.Raw = json.RawMessage(raw)
		tweets = append(tweets, &tweet)
	}

	return tweets, rows.Err()
}
