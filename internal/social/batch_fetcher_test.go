package social

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kolwatch/kolwatch/internal/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]models.ParsedTweet
	errs    map[string]error
}

func (f *fakeFetcher) FetchUserTweets(ctx context.Context, userID string) ([]models.ParsedTweet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()

	if err, ok := f.errs[userID]; ok {
		return nil, err
	}
	return f.results[userID], nil
}

func TestFetchAllGroupsAndPaces(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string][]models.ParsedTweet{}}

	var slept []time.Duration
	bf := NewBatchFetcher(fetcher, 5, 1100*time.Millisecond, slog.New(slog.DiscardHandler))
	bf.sleep = func(d time.Duration) { slept = append(slept, d) }
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	bf.now = func() time.Time { return clock }

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}

	results := bf.FetchAll(context.Background(), ids)

	if len(results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(results))
	}
	for i, result := range results {
		if result.UserID != ids[i] {
			t.Errorf("result %d has user %q, want %q", i, result.UserID, ids[i])
		}
	}

	if len(fetcher.calls) != 12 {
		t.Errorf("expected 12 fetch calls, got %d", len(fetcher.calls))
	}

	// 12 IDs in groups of 5 means two inter-group waits, none after the last.
	if len(slept) != 2 {
		t.Fatalf("expected 2 pacing sleeps, got %d", len(slept))
	}
	for _, d := range slept {
		if d != 1100*time.Millisecond {
			t.Errorf("pacing sleep = %v, want 1.1s with a frozen clock", d)
		}
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		results: map[string][]models.ParsedTweet{
			"ok": {{TweetID: "1", Text: "hi"}},
		},
		errs: map[string]error{
			"bad": errors.New("upstream exploded"),
		},
	}

	bf := NewBatchFetcher(fetcher, 5, 0, slog.New(slog.DiscardHandler))

	results := bf.FetchAll(context.Background(), []string{"ok", "bad"})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].Err != nil || len(results[0].Tweets) != 1 {
		t.Errorf("healthy account affected by neighbor failure: %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("expected recorded error for failing account")
	}
	if len(results[1].Tweets) != 0 {
		t.Error("expected empty tweets for failing account")
	}
}

func TestFetchAllEmptyInput(t *testing.T) {
	bf := NewBatchFetcher(&fakeFetcher{}, 5, time.Second, slog.New(slog.DiscardHandler))

	if results := bf.FetchAll(context.Background(), nil); results != nil {
		t.Errorf("expected nil results for empty input, got %v", results)
	}
}
