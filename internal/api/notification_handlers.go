package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/pipeline"
)

// maxNotificationBody caps inbound payloads; real notification pushes are
// well under 1 MB.
const maxNotificationBody = 4 << 20

// NotificationProcessor runs one raw payload through the pipeline.
type NotificationProcessor interface {
	Process(ctx context.Context, raw []byte) (*pipeline.Result, error)
}

// NotificationHandler receives pushed notification payloads.
type NotificationHandler struct {
	processor   NotificationProcessor
	ingestToken string
	logger      *slog.Logger
}

// NewNotificationHandler creates a new notification ingest handler. An empty
// ingestToken disables the shared-secret check.
func NewNotificationHandler(processor NotificationProcessor, ingestToken string, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		processor:   processor,
		ingestToken: ingestToken,
		logger:      logger,
	}
}

// Receive handles POST /api/v1/notifications
func (h *NotificationHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.ingestToken != "" && r.Header.Get("X-Ingest-Token") != h.ingestToken {
		h.logger.Warn("notification ingest rejected", "ip", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.processor.Process(r.Context(), body)
	if err != nil {
		h.logger.Error("notification processing failed", "error", err)
		if errors.Is(err, pipeline.ErrInvalidPayload) {
			http.Error(w, "Invalid notification payload", http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": result}, h.logger)
}

// DemoWebhook handles POST /api/v1/demo-webhook: a target subscribers can
// point at to see exactly what the dispatcher sends.
func (h *NotificationHandler) DemoWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	h.logger.Info("demo webhook hit",
		"bytes", len(body),
		"signature", r.Header.Get("X-Kolwatch-Signature"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"bytes":    len(body),
	}, h.logger)
}
