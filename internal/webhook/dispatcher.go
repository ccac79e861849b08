// Package webhook delivers new-post events to subscriber endpoints and writes
// the per-delivery receipts.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
)

// TimeoutError marks a delivery that exceeded the per-request timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("webhook request timed out after %s", e.Timeout)
}

// DeliveryError wraps any non-timeout delivery failure.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// AccountInfo is the subscriber-facing identity block of the event payload.
type AccountInfo struct {
	ID          string  `json:"id"`
	XHandle     string  `json:"xHandle"`
	XUserID     *int64  `json:"xUserID,omitempty"`
	XUserIDStr  *string `json:"xUserIDStr,omitempty"`
	XScreenName *string `json:"xScreenName,omitempty"`
	XName       *string `json:"xName,omitempty"`
}

// Payload is the JSON body POSTed to subscriber endpoints.
type Payload struct {
	Tweet models.ParsedTweet `json:"tweet"`
	User  AccountInfo        `json:"user"`
}

// Event is one observed new post paired with its KOL.
type Event struct {
	KOL   *models.KOL
	Tweet models.ParsedTweet
}

// Outcome records one delivery attempt as data. Err is a *TimeoutError or
// *DeliveryError; Response is nil when no HTTP response was obtained.
type Outcome struct {
	Subscription *models.Subscription
	KOL          *models.KOL
	Payload      json.RawMessage
	HitAt        time.Time
	Response     *models.WebhookResponse
	Err          error
}

// Dispatcher fans new-post events out to every deliverable subscription.
type Dispatcher struct {
	subscriptions models.SubscriptionRepository
	httpClient    *http.Client
	timeout       time.Duration
	maxInFlight   int
	signingSecret string
	logger        *slog.Logger

	now func() time.Time
}

// NewDispatcher constructs a Dispatcher. signingSecret may be empty, which
// disables payload signing.
func NewDispatcher(subscriptions models.SubscriptionRepository, timeout time.Duration, maxInFlight int, signingSecret string, logger *slog.Logger) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Dispatcher{
		subscriptions: subscriptions,
		httpClient:    &http.Client{Timeout: timeout},
		timeout:       timeout,
		maxInFlight:   maxInFlight,
		signingSecret: signingSecret,
		logger:        logger,
		now:           time.Now,
	}
}

// DispatchAll resolves the deliverable subscriptions for the events' KOLs and
// delivers each one's payload. One failing endpoint never affects another;
// every attempt comes back as an Outcome.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []Event) ([]Outcome, error) {
	if len(events) == 0 {
		return nil, nil
	}

	eventsByKOL := make(map[string]Event, len(events))
	kolIDs := make([]string, 0, len(events))
	for _, event := range events {
		if _, ok := eventsByKOL[event.KOL.ID]; !ok {
			kolIDs = append(kolIDs, event.KOL.ID)
		}
		eventsByKOL[event.KOL.ID] = event
	}

	subs, err := d.subscriptions.ListDeliverableByKOLIDs(ctx, kolIDs)
	if err != nil {
		return nil, fmt.Errorf("list deliverable subscriptions: %w", err)
	}

	type job struct {
		sub   *models.Subscription
		event Event
	}

	var jobs []job
	for _, sub := range subs {
		if !sub.Deliverable() {
			continue
		}
		event, ok := eventsByKOL[sub.KOLID]
		if !ok {
			continue
		}
		jobs = append(jobs, job{sub: sub, event: event})
	}

	d.logger.Info("dispatching webhooks",
		"events", len(events),
		"deliveries", len(jobs))

	outcomes := make([]Outcome, len(jobs))
	sem := make(chan struct{}, d.maxInFlight)
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		go func(idx int, j job) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[idx] = d.deliver(ctx, j.sub, j.event)
		}(i, j)
	}
	wg.Wait()

	return outcomes, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub *models.Subscription, event Event) Outcome {
	payload := buildPayload(event)
	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{
			Subscription: sub,
			KOL:          event.KOL,
			HitAt:        d.now(),
			Err:          &DeliveryError{Err: err},
		}
	}

	outcome := Outcome{
		Subscription: sub,
		KOL:          event.KOL,
		Payload:      body,
		HitAt:        d.now(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.WebhookURL, bytes.NewReader(body))
	if err != nil {
		outcome.Err = &DeliveryError{Err: err}
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")
	if d.signingSecret != "" {
		req.Header.Set("X-Kolwatch-Signature", sign(body, d.signingSecret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		outcome.Err = classifyDeliveryError(err, d.timeout)
		d.logger.Debug("webhook delivery failed",
			"subscription_id", sub.ID,
			"url", sub.WebhookURL,
			"error", outcome.Err)
		return outcome
	}
	defer resp.Body.Close()

	outcome.Response = &models.WebhookResponse{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		URL:        sub.WebhookURL,
	}
	return outcome
}

func buildPayload(event Event) Payload {
	return Payload{
		Tweet: event.Tweet,
		User: AccountInfo{
			ID:          event.KOL.ID,
			XHandle:     event.KOL.Handle,
			XUserID:     event.KOL.XUserID,
			XUserIDStr:  event.KOL.XUserIDStr,
			XScreenName: event.KOL.XScreenName,
			XName:       event.KOL.XName,
		},
	}
}

func classifyDeliveryError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Timeout: timeout}
	}
	return &DeliveryError{Err: err}
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
