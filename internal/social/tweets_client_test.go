package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func timelinePayload(entries string) string {
	return fmt.Sprintf(`{
		"data": {"user": {"result": {"timeline_v2": {"timeline": {"instructions": [
			{"type": "TimelineClearCache"},
			{"type": "TimelineAddEntries", "entries": [%s]}
		]}}}}}
	}`, entries)
}

func timelineEntryJSON(id, text, createdAt, screenName string) string {
	return fmt.Sprintf(`{
		"content": {"itemContent": {"tweet_results": {"result": {
			"core": {"user_results": {"result": {"legacy": {"screen_name": %q}}}},
			"legacy": {"id_str": %q, "full_text": %q, "created_at": %q, "user_id_str": "42", "lang": "en"}
		}}}}
	}`, screenName, id, text, createdAt)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, recencyWindow time.Duration) (*TweetsClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewTweetsClient("test-key", 5, recencyWindow, slog.New(slog.DiscardHandler))
	client.baseURL = server.URL
	client.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return client, server
}

func TestFetchUserTweetsParsesTimeline(t *testing.T) {
	fresh := time.Date(2024, 6, 1, 11, 58, 0, 0, time.UTC).Format(time.RubyDate)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-rapidapi-key"); got != "test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		if got := r.URL.Query().Get("id"); got != "42" {
			t.Errorf("expected id=42, got %q", got)
		}
		fmt.Fprint(w, timelinePayload(timelineEntryJSON("900", "hello world", fresh, "alice")))
	}, 5*time.Minute)

	tweets, err := client.FetchUserTweets(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchUserTweets returned error: %v", err)
	}

	if len(tweets) != 1 {
		t.Fatalf("expected 1 tweet, got %d", len(tweets))
	}

	tweet := tweets[0]
	if tweet.TweetID != "900" {
		t.Errorf("TweetID = %q, want 900", tweet.TweetID)
	}
	if tweet.Text != "hello world" {
		t.Errorf("Text = %q", tweet.Text)
	}
	if tweet.URL != "https://x.com/alice/status/900" {
		t.Errorf("URL = %q", tweet.URL)
	}
	if tweet.CreatedAt == nil {
		t.Fatal("expected parsed CreatedAt")
	}
	if tweet.Lang != "en" {
		t.Errorf("Lang = %q", tweet.Lang)
	}
	if len(tweet.Raw) == 0 {
		t.Error("expected raw legacy payload to be retained")
	}
}

func TestFetchUserTweetsFiltersByRecency(t *testing.T) {
	fresh := time.Date(2024, 6, 1, 11, 57, 0, 0, time.UTC).Format(time.RubyDate)
	stale := time.Date(2024, 6, 1, 11, 40, 0, 0, time.UTC).Format(time.RubyDate)

	entries := timelineEntryJSON("1", "fresh", fresh, "alice") + "," +
		timelineEntryJSON("2", "stale", stale, "alice") + "," +
		timelineEntryJSON("3", "no timestamp", "", "alice")

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, timelinePayload(entries))
	}, 5*time.Minute)

	tweets, err := client.FetchUserTweets(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchUserTweets returned error: %v", err)
	}

	if len(tweets) != 1 || tweets[0].TweetID != "1" {
		t.Fatalf("expected only the fresh tweet, got %+v", tweets)
	}
}

func TestFetchUserTweetsKeepsUnparseableTimestampWhenFilterDisabled(t *testing.T) {
	entries := timelineEntryJSON("1", "undated", "not-a-date", "alice")

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, timelinePayload(entries))
	}, 0)

	tweets, err := client.FetchUserTweets(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchUserTweets returned error: %v", err)
	}

	if len(tweets) != 1 {
		t.Fatalf("expected 1 tweet, got %d", len(tweets))
	}
	if tweets[0].CreatedAt != nil {
		t.Error("expected nil CreatedAt for unparseable timestamp")
	}
	if tweets[0].CreatedAtRaw != "not-a-date" {
		t.Errorf("CreatedAtRaw = %q", tweets[0].CreatedAtRaw)
	}
}

func TestFetchUserTweetsUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, 0)

	_, err := client.FetchUserTweets(context.Background(), "42")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	apiErr, ok := err.(*UpstreamAPIError)
	if !ok {
		t.Fatalf("expected *UpstreamAPIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

func TestFetchUserTweetsEmptyTimeline(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {}}`)
	}, 0)

	tweets, err := client.FetchUserTweets(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchUserTweets returned error: %v", err)
	}
	if len(tweets) != 0 {
		t.Errorf("expected no tweets, got %d", len(tweets))
	}
}

func TestParseTweetTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "upstream format", value: "Sat Jun 01 11:58:00 +0000 2024", want: true},
		{name: "rfc3339", value: "2024-06-01T11:58:00Z", want: true},
		{name: "epoch millis", value: "1717243080000", want: true},
		{name: "empty", value: "", want: false},
		{name: "garbage", value: "yesterday", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTweetTime(tt.value)
			if (got != nil) != tt.want {
				t.Errorf("parseTweetTime(%q) = %v, want parseable=%v", tt.value, got, tt.want)
			}
		})
	}
}
