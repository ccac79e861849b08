package social

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
)

// UserTweetsFetcher is the single-account fetch the batcher fans out over.
type UserTweetsFetcher interface {
	FetchUserTweets(ctx context.Context, userID string) ([]models.ParsedTweet, error)
}

// BatchResult pairs one requested user ID with its fetched posts. Tweets is
// empty when the fetch failed; Err carries the absorbed failure for metrics.
type BatchResult struct {
	UserID string
	Tweets []models.ParsedTweet
	Err    error
}

// BatchFetcher spreads timeline fetches over time to stay inside the upstream
// rate limit: requests run concurrently in fixed-size groups, and consecutive
// groups are spaced at least the pacing interval apart.
type BatchFetcher struct {
	fetcher        UserTweetsFetcher
	groupSize      int
	pacingInterval time.Duration
	logger         *slog.Logger

	// sleep and now are replaceable in tests
	sleep func(time.Duration)
	now   func() time.Time
}

// NewBatchFetcher constructs a BatchFetcher. groupSize must be positive.
func NewBatchFetcher(fetcher UserTweetsFetcher, groupSize int, pacingInterval time.Duration, logger *slog.Logger) *BatchFetcher {
	if groupSize <= 0 {
		groupSize = 1
	}
	return &BatchFetcher{
		fetcher:        fetcher,
		groupSize:      groupSize,
		pacingInterval: pacingInterval,
		logger:         logger,
		sleep:          time.Sleep,
		now:            time.Now,
	}
}

// FetchAll fetches posts for every user ID and returns one result per input,
// in input order. A failed fetch never aborts the batch: the failing account
// gets an empty result and the error is recorded on it.
func (b *BatchFetcher) FetchAll(ctx context.Context, userIDs []string) []BatchResult {
	if len(userIDs) == 0 {
		b.logger.Warn("no user IDs provided for batch fetch")
		return nil
	}

	results := make([]BatchResult, len(userIDs))

	for start := 0; start < len(userIDs); start += b.groupSize {
		end := min(start+b.groupSize, len(userIDs))
		groupStart := b.now()

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()

				userID := userIDs[idx]
				tweets, err := b.fetcher.FetchUserTweets(ctx, userID)
				if err != nil {
					b.logger.Error("failed to fetch tweets, continuing batch",
						"user_id", userID,
						"error", err)
					results[idx] = BatchResult{UserID: userID, Err: err}
					return
				}
				results[idx] = BatchResult{UserID: userID, Tweets: tweets}
			}(i)
		}
		wg.Wait()

		if end < len(userIDs) {
			if elapsed := b.now().Sub(groupStart); elapsed < b.pacingInterval {
				b.sleep(b.pacingInterval - elapsed)
			}
		}
	}

	return results
}
