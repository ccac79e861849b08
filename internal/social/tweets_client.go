// Package social talks to the upstream posts API and turns its deeply nested
// timeline payloads into strict internal tweet records.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
)

const defaultBaseURL = "https://twitter135.p.rapidapi.com"

// UpstreamAPIError reports a non-success response from the posts API.
type UpstreamAPIError struct {
	StatusCode int
	UserID     string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("posts API returned status %d for user %s", e.StatusCode, e.UserID)
}

// TweetsClient fetches recent posts for external user IDs.
type TweetsClient struct {
	apiKey        string
	baseURL       string
	maxTweets     int
	recencyWindow time.Duration
	httpClient    *http.Client
	logger        *slog.Logger

	// now is replaceable in tests to pin the recency cutoff
	now func() time.Time
}

// NewTweetsClient creates a posts API client. A recencyWindow of zero disables
// age filtering.
func NewTweetsClient(apiKey string, maxTweets int, recencyWindow time.Duration, logger *slog.Logger) *TweetsClient {
	return &TweetsClient{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		maxTweets:     maxTweets,
		recencyWindow: recencyWindow,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
}

// userTweetsResponse mirrors only the path of the upstream timeline payload
// this client reads. Every level is optional.
type userTweetsResponse struct {
	Data struct {
		User struct {
			Result struct {
				TimelineV2 struct {
					Timeline struct {
						Instructions []struct {
							Type    string          `json:"type"`
							Entries []timelineEntry `json:"entries"`
						} `json:"instructions"`
					} `json:"timeline"`
				} `json:"timeline_v2"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

type timelineEntry struct {
	Content struct {
		ItemContent struct {
			TweetResults struct {
				Result struct {
					Core struct {
						UserResults struct {
							Result struct {
								Legacy struct {
									ScreenName string `json:"screen_name"`
								} `json:"legacy"`
							} `json:"result"`
						} `json:"user_results"`
					} `json:"core"`
					Legacy json.RawMessage `json:"legacy"`
				} `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

// legacyTweet is the subset of the legacy tweet object this client extracts.
type legacyTweet struct {
	IDStr     string `json:"id_str"`
	FullText  string `json:"full_text"`
	CreatedAt string `json:"created_at"`
	UserIDStr string `json:"user_id_str"`
	Lang      string `json:"lang"`
}

// FetchUserTweets returns the recent posts for one external user ID, newest
// first as the upstream orders them. Posts older than the recency window and
// entries without a parseable timestamp are dropped while filtering is active.
func (c *TweetsClient) FetchUserTweets(ctx context.Context, userID string) ([]models.ParsedTweet, error) {
	endpoint := fmt.Sprintf("%s/v2/UserTweets/?id=%s&count=%d",
		c.baseURL, url.QueryEscape(userID), c.maxTweets)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", "twitter135.p.rapidapi.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tweets for user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamAPIError{StatusCode: resp.StatusCode, UserID: userID}
	}

	var parsed userTweetsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse timeline for user %s: %w", userID, err)
	}

	return c.extractTweets(parsed, userID), nil
}

func (c *TweetsClient) extractTweets(parsed userTweetsResponse, userID string) []models.ParsedTweet {
	var entries []timelineEntry
	for _, instruction := range parsed.Data.User.Result.TimelineV2.Timeline.Instructions {
		if instruction.Type == "TimelineAddEntries" {
			entries = instruction.Entries
			break
		}
	}

	var cutoff time.Time
	if c.recencyWindow > 0 {
		cutoff = c.now().Add(-c.recencyWindow)
	}

	var tweets []models.ParsedTweet
	for _, entry := range entries {
		if len(tweets) >= c.maxTweets {
			break
		}

		raw := entry.Content.ItemContent.TweetResults.Result.Legacy
		if len(raw) == 0 {
			continue
		}

		var legacy legacyTweet
		if err := json.Unmarshal(raw, &legacy); err != nil {
			c.logger.Debug("skipping undecodable timeline entry", "user_id", userID, "error", err)
			continue
		}
		if legacy.IDStr == "" || legacy.FullText == "" {
			continue
		}

		createdAt := parseTweetTime(legacy.CreatedAt)
		if c.recencyWindow > 0 {
			if createdAt == nil {
				c.logger.Warn("tweet has no parseable creation time",
					"user_id", userID,
					"tweet_id", legacy.IDStr,
					"created_at", legacy.CreatedAt)
				continue
			}
			if createdAt.Before(cutoff) {
				continue
			}
		}

		screenName := entry.Content.ItemContent.TweetResults.Result.Core.UserResults.Result.Legacy.ScreenName
		if screenName == "" {
			screenName = "username"
		}

		tweetUserID := legacy.UserIDStr
		if tweetUserID == "" {
			tweetUserID = userID
		}

		tweets = append(tweets, models.ParsedTweet{
			TweetID:      legacy.IDStr,
			UserIDStr:    tweetUserID,
			Text:         legacy.FullText,
			CreatedAt:    createdAt,
			CreatedAtRaw: legacy.CreatedAt,
			Lang:         legacy.Lang,
			URL:          fmt.Sprintf("https://x.com/%s/status/%s", screenName, legacy.IDStr),
			Raw:          raw,
		})
	}

	return tweets
}

// parseTweetTime parses the upstream timestamp format
// ("Mon Jan 02 15:04:05 -0700 2006"), falling back to RFC 3339 and epoch
// milliseconds. Returns nil when nothing matches.
func parseTweetTime(value string) *time.Time {
	if value == "" {
		return nil
	}

	if t, err := time.Parse(time.RubyDate, value); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}
