package api

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
)

// ReceiptHandler serves a user's webhook delivery history.
type ReceiptHandler struct {
	receipts models.ReceiptRepository
	logger   *slog.Logger
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(receipts models.ReceiptRepository, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, logger: logger}
}

// List handles GET /api/v1/receipts
func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := APIUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	receipts, err := h.receipts.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list receipts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if receipts == nil {
		receipts = []*models.WebhookReceipt{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": receipts}, h.logger)
}
