package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
	"github.com/kolwatch/kolwatch/internal/notifications"
	"github.com/kolwatch/kolwatch/internal/social"
	"github.com/kolwatch/kolwatch/internal/webhook"
	"github.com/kolwatch/kolwatch/internal/xhandle"
)

// TweetsBatcher fetches recent posts for a set of external user IDs.
type TweetsBatcher interface {
	FetchAll(ctx context.Context, userIDs []string) []social.BatchResult
}

// WebhookDispatcher fans events out to subscriber endpoints.
type WebhookDispatcher interface {
	DispatchAll(ctx context.Context, events []webhook.Event) ([]webhook.Outcome, error)
}

// OutcomeWriter persists receipts for delivery outcomes.
type OutcomeWriter interface {
	WriteAll(ctx context.Context, outcomes []webhook.Outcome) (written, failed int)
}

// Metrics receives pipeline observations. *metrics.Collector satisfies it.
type Metrics interface {
	ObserveNotification(result string)
	ObserveSuppressed(count int)
	ObserveTweetsFetched(count int)
	ObserveFetchError()
	ObserveDelivery(outcome string)
	ObserveReceipt(result string)
}

// ErrInvalidPayload marks a structurally invalid notification payload. Other
// Process errors are internal failures, not the caller's fault.
var ErrInvalidPayload = errors.New("invalid notification payload")

// Result summarizes one processed notification payload.
type Result struct {
	MatchedUsers    int `json:"matched_users"`
	KnownKOLs       int `json:"known_kols"`
	Suppressed      int `json:"suppressed"`
	PostsObserved   int `json:"posts_observed"`
	Deliveries      int `json:"deliveries"`
	ReceiptsWritten int `json:"receipts_written"`
	ReceiptsFailed  int `json:"receipts_failed"`
}

// Orchestrator runs the end-to-end notification pipeline.
type Orchestrator struct {
	parser     *notifications.Parser
	kols       models.KOLRepository
	fetcher    TweetsBatcher
	dispatcher WebhookDispatcher
	receipts   OutcomeWriter
	metrics    Metrics
	window     time.Duration
	logger     *slog.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewOrchestrator wires the pipeline stages together. window is the duplicate
// suppression window.
func NewOrchestrator(
	parser *notifications.Parser,
	kols models.KOLRepository,
	fetcher TweetsBatcher,
	dispatcher WebhookDispatcher,
	receipts OutcomeWriter,
	metrics Metrics,
	window time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		parser:     parser,
		kols:       kols,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		receipts:   receipts,
		metrics:    metrics,
		window:     window,
		logger:     logger,
		now:        time.Now,
	}
}

// candidate is one matched user bound to its monitored KOL.
type candidate struct {
	user notifications.XUser
	kol  *models.KOL
}

// Process runs one notification payload through the whole pipeline. Webhook
// deliveries happen before any persistence: they are the time-sensitive part.
func (o *Orchestrator) Process(ctx context.Context, raw []byte) (*Result, error) {
	parsed, err := o.parser.Parse(raw)
	if err != nil {
		o.metrics.ObserveNotification("parse_error")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	result := &Result{MatchedUsers: len(parsed.Users)}
	if len(parsed.Users) == 0 {
		o.logger.Info("no new-post users in notification")
		o.metrics.ObserveNotification("empty")
		return result, nil
	}

	candidates, err := o.resolveKOLs(ctx, parsed.Users)
	if err != nil {
		o.metrics.ObserveNotification("error")
		return nil, err
	}
	result.KnownKOLs = len(candidates)
	if len(candidates) == 0 {
		o.logger.Info("no monitored accounts among notification users")
		o.metrics.ObserveNotification("unknown_accounts")
		return result, nil
	}

	now := o.now()
	fresh := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if !IsFreshEvent(c.kol.LastPostSeenAt, now, o.window) {
			o.logger.Debug("suppressing duplicate notification",
				"handle", c.kol.Handle,
				"last_post_seen_at", c.kol.LastPostSeenAt)
			result.Suppressed++
			continue
		}
		fresh = append(fresh, c)
	}
	o.metrics.ObserveSuppressed(result.Suppressed)

	if len(fresh) == 0 {
		o.logger.Info("all matched accounts suppressed as duplicates",
			"suppressed", result.Suppressed)
		o.metrics.ObserveNotification("suppressed")
		return result, nil
	}

	events, updates := o.fetchPosts(ctx, fresh, now)
	result.PostsObserved = len(events)
	o.metrics.ObserveTweetsFetched(len(events))

	// Deliveries come first; persistence must never delay them.
	outcomes, err := o.dispatcher.DispatchAll(ctx, events)
	if err != nil {
		o.logger.Error("webhook dispatch failed", "error", err)
		o.metrics.ObserveNotification("dispatch_error")
	} else {
		result.Deliveries = len(outcomes)
		for _, outcome := range outcomes {
			o.metrics.ObserveDelivery(outcomeLabel(outcome))
		}
	}

	o.persist(ctx, updates, outcomes, result)

	o.metrics.ObserveNotification("processed")
	o.logger.Info("notification processed",
		"matched_users", result.MatchedUsers,
		"known_kols", result.KnownKOLs,
		"suppressed", result.Suppressed,
		"posts_observed", result.PostsObserved,
		"deliveries", result.Deliveries)

	return result, nil
}

// resolveKOLs canonicalizes the matched users' handles and binds each user to
// its monitored KOL. Users without a monitored account are dropped.
func (o *Orchestrator) resolveKOLs(ctx context.Context, users []notifications.XUser) ([]candidate, error) {
	handles := make([]string, 0, len(users))
	seen := map[string]bool{}
	for _, user := range users {
		handle := xhandle.Parse(user.ScreenName)
		if handle == "" || seen[handle] {
			continue
		}
		seen[handle] = true
		handles = append(handles, handle)
	}

	kols, err := o.kols.ListByHandles(ctx, handles)
	if err != nil {
		return nil, err
	}

	byHandle := make(map[string]*models.KOL, len(kols))
	for _, kol := range kols {
		byHandle[kol.Handle] = kol
	}

	var candidates []candidate
	for _, user := range users {
		kol, ok := byHandle[xhandle.Parse(user.ScreenName)]
		if !ok {
			o.logger.Debug("notification user is not monitored", "screen_name", user.ScreenName)
			continue
		}
		candidates = append(candidates, candidate{user: user, kol: kol})
	}
	return candidates, nil
}

// fetchPosts fetches timelines for the fresh candidates, selects each
// account's newest post and builds both the outbound events and the KOL state
// updates. Accounts with no usable external ID never reach the fetcher; they
// would waste a slot in a rate-limited group on a request that cannot succeed.
func (o *Orchestrator) fetchPosts(ctx context.Context, fresh []candidate, now time.Time) ([]webhook.Event, []models.KOLPostUpdate) {
	fetchable := make([]candidate, 0, len(fresh))
	ids := make([]string, 0, len(fresh))
	for _, c := range fresh {
		id := fetchID(c)
		if id == "" {
			o.logger.Warn("no external user id for account, skipping fetch", "handle", c.kol.Handle)
			continue
		}
		fetchable = append(fetchable, c)
		ids = append(ids, id)
	}

	results := o.fetcher.FetchAll(ctx, ids)

	var events []webhook.Event
	var updates []models.KOLPostUpdate
	for i, res := range results {
		c := fetchable[i]
		if res.Err != nil {
			o.metrics.ObserveFetchError()
			continue
		}
		if len(res.Tweets) == 0 {
			o.logger.Debug("no recent posts for account", "handle", c.kol.Handle)
			continue
		}

		tweet := newestTweet(res.Tweets)
		update := models.KOLPostUpdate{
			KOLID:          c.kol.ID,
			LastPostSeenAt: now,
			Activate:       c.kol.Status == models.KOLStatusPending,
			Tweet:          &tweet,
		}

		eventKOL := *c.kol
		if identityChanged(c.kol, c.user) {
			snapshot := identitySnapshot(c.user, now)
			update.Identity = &snapshot
			applyIdentity(&eventKOL, snapshot)
		}

		events = append(events, webhook.Event{KOL: &eventKOL, Tweet: tweet})
		updates = append(updates, update)
	}

	return events, updates
}

// persist writes the KOL state updates and the delivery receipts. Both are
// best effort after delivery: failures are logged, never returned.
func (o *Orchestrator) persist(ctx context.Context, updates []models.KOLPostUpdate, outcomes []webhook.Outcome, result *Result) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.kols.ApplyPostUpdates(ctx, updates); err != nil {
			o.logger.Error("failed to apply post updates", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		written, failed := o.receipts.WriteAll(ctx, outcomes)
		result.ReceiptsWritten = written
		result.ReceiptsFailed = failed
		for i := 0; i < written; i++ {
			o.metrics.ObserveReceipt("written")
		}
		for i := 0; i < failed; i++ {
			o.metrics.ObserveReceipt("failed")
		}
	}()

	wg.Wait()
}

// fetchID picks the external user ID for the timeline fetch, preferring the
// notification payload and falling back to the KOL's stored identity.
func fetchID(c candidate) string {
	if c.user.IDStr != "" {
		return c.user.IDStr
	}
	if c.user.ID != 0 {
		return strconv.FormatInt(c.user.ID, 10)
	}
	if c.kol.XUserIDStr != nil {
		return *c.kol.XUserIDStr
	}
	return ""
}

// newestTweet returns the tweet with the latest parseable timestamp, or the
// first returned tweet when none carries one.
func newestTweet(tweets []models.ParsedTweet) models.ParsedTweet {
	best := -1
	for i, t := range tweets {
		if t.CreatedAt == nil {
			continue
		}
		if best == -1 || t.CreatedAt.After(*tweets[best].CreatedAt) {
			best = i
		}
	}
	if best == -1 {
		return tweets[0]
	}
	return tweets[best]
}

func identityChanged(kol *models.KOL, user notifications.XUser) bool {
	return kol.XUserID == nil || *kol.XUserID != user.ID
}

func identitySnapshot(user notifications.XUser, now time.Time) models.XIdentitySnapshot {
	return models.XIdentitySnapshot{
		XUserID:     user.ID,
		XUserIDStr:  user.IDStr,
		XScreenName: user.ScreenName,
		XName:       user.Name,
		UpdatedAt:   now,
	}
}

func applyIdentity(kol *models.KOL, snapshot models.XIdentitySnapshot) {
	kol.XUserID = &snapshot.XUserID
	kol.XUserIDStr = &snapshot.XUserIDStr
	kol.XScreenName = &snapshot.XScreenName
	kol.XName = &snapshot.XName
}

func outcomeLabel(outcome webhook.Outcome) string {
	switch outcome.Err.(type) {
	case nil:
		if outcome.Response != nil && outcome.Response.OK {
			return "ok"
		}
		return "http_error"
	case *webhook.TimeoutError:
		return "timeout"
	default:
		return "error"
	}
}
