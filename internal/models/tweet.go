package models

import (
	"context"
	"encoding/json"
	"time"
)

// ParsedTweet is the strict internal form of one upstream post. The upstream
// payload is retained verbatim in Raw for forward compatibility; CreatedAt is
// nil when the upstream timestamp was missing or unparseable.
type ParsedTweet struct {
	TweetID      string          `json:"tweetId"`
	UserIDStr    string          `json:"userId"`
	Text         string          `json:"text"`
	CreatedAt    *time.Time      `json:"-"`
	CreatedAtRaw string          `json:"-"`
	Lang         string          `json:"lang,omitempty"`
	URL          string          `json:"url,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// MarshalJSON emits the wire form of a tweet with createdAt in RFC 3339.
func (t ParsedTweet) MarshalJSON() ([]byte, error) {
	type alias ParsedTweet
	createdAt := ""
	if t.CreatedAt != nil {
		createdAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(struct {
		alias
		CreatedAt string `json:"createdAt"`
	}{alias(t), createdAt})
}

// KOLTweet is one observed post stored under its KOL for history
type KOLTweet struct {
	ID        string          `json:"id"`
	KOLID     string          `json:"kol_id"`
	TweetID   string          `json:"tweet_id"`
	UserIDStr string          `json:"user_id_str"`
	Text      string          `json:"text"`
	PostedAt  *time.Time      `json:"posted_at,omitempty"`
	Lang      string          `json:"lang,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// KOLTweetRepository defines read access to the per-KOL tweet history.
// Writes happen through KOLRepository.ApplyPostUpdates so the tweet append and
// the KOL state change land together.
type KOLTweetRepository interface {
	// ListByKOL returns the most recent stored tweets for a KOL
	ListByKOL(ctx context.Context, kolID string, limit int) ([]*KOLTweet, error)
}
