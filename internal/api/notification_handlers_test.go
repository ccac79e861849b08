package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kolwatch/kolwatch/internal/auth"
	"github.com/kolwatch/kolwatch/internal/models"
	"github.com/kolwatch/kolwatch/internal/pipeline"
)

type fakeProcessor struct {
	raw    []byte
	result *pipeline.Result
	err    error
}

func (f *fakeProcessor) Process(ctx context.Context, raw []byte) (*pipeline.Result, error) {
	f.raw = raw
	return f.result, f.err
}

func TestReceiveProcessesPayload(t *testing.T) {
	processor := &fakeProcessor{result: &pipeline.Result{MatchedUsers: 2, Deliveries: 3}}
	h := NewNotificationHandler(processor, "", slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{"globalObjects":{}}`))
	rr := httptest.NewRecorder()

	h.Receive(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if string(processor.raw) != `{"globalObjects":{}}` {
		t.Errorf("processor got %q", processor.raw)
	}
	if !strings.Contains(rr.Body.String(), `"deliveries":3`) {
		t.Errorf("response missing result summary: %s", rr.Body.String())
	}
}

func TestReceiveRejectsBadToken(t *testing.T) {
	h := NewNotificationHandler(&fakeProcessor{}, "secret-token", slog.New(slog.DiscardHandler))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing token", token: "", want: http.StatusUnauthorized},
		{name: "wrong token", token: "nope", want: http.StatusUnauthorized},
		{name: "correct token", token: "secret-token", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{}`))
			if tt.token != "" {
				req.Header.Set("X-Ingest-Token", tt.token)
			}
			rr := httptest.NewRecorder()

			h.Receive(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestReceiveDistinguishesProcessingErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "malformed payload",
			err:  fmt.Errorf("%w: decode notification payload", pipeline.ErrInvalidPayload),
			want: http.StatusBadRequest,
		},
		{
			name: "internal failure",
			err:  errors.New("list kols: connection refused"),
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewNotificationHandler(&fakeProcessor{err: tt.err}, "", slog.New(slog.DiscardHandler))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{}`))
			rr := httptest.NewRecorder()

			h.Receive(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestReceiveRejectsGet(t *testing.T) {
	h := NewNotificationHandler(&fakeProcessor{}, "", slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rr := httptest.NewRecorder()

	h.Receive(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestDemoWebhookEchoes(t *testing.T) {
	h := NewNotificationHandler(&fakeProcessor{}, "", slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/demo-webhook", strings.NewReader(`{"tweet":{}}`))
	rr := httptest.NewRecorder()

	h.DemoWebhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"received":true`) {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

type fakeKeyRepo struct {
	models.APIKeyRepository
	byHash map[string]*models.APIKey
}

func (f *fakeKeyRepo) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	if key, ok := f.byHash[hash]; ok {
		return key, nil
	}
	return nil, models.ErrNotFound
}

func TestAPIKeyMiddleware(t *testing.T) {
	// SHA-512 of "good-key" looked up through the auth package hash.
	repo := &fakeKeyRepo{byHash: map[string]*models.APIKey{}}

	var gotUserID string
	handler := APIKeyMiddleware(repo, slog.New(slog.DiscardHandler))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID, _ = APIUserID(r.Context())
		}))

	// Register the key the same way the admin handler would.
	plaintext := "good-key"
	repo.byHash[auth.HashAPIKey(plaintext)] = &models.APIKey{ID: "key-1", UserID: "user-1"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("X-API-Key", plaintext)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("user from context = %q, want user-1", gotUserID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rr.Code)
	}
}
