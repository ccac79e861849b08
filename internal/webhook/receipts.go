package webhook

import (
	"context"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
)

// ReceiptWriter persists one receipt per delivery outcome and promotes
// pending subscriptions that received their first delivery.
type ReceiptWriter struct {
	receipts models.ReceiptRepository
	logger   *slog.Logger
}

func NewReceiptWriter(receipts models.ReceiptRepository, logger *slog.Logger) *ReceiptWriter {
	return &ReceiptWriter{receipts: receipts, logger: logger}
}

// WriteAll writes receipts for every outcome, failed deliveries included.
// The promotion from pending to active happens regardless of whether the
// delivery itself succeeded: the attempt is what activates the subscription.
// A failed receipt write is logged and never blocks the remaining writes.
func (w *ReceiptWriter) WriteAll(ctx context.Context, outcomes []Outcome) (written, failed int) {
	for _, outcome := range outcomes {
		receipt := &models.WebhookReceipt{
			SubscriptionID: outcome.Subscription.ID,
			KOLID:          outcome.KOL.ID,
			UserID:         outcome.Subscription.UserID,
			PayloadSent:    outcome.Payload,
			HitAt:          outcome.HitAt,
			Response:       outcome.Response,
		}
		if outcome.Err != nil {
			msg := outcome.Err.Error()
			receipt.ErrorMessage = &msg
		}

		promoteID := ""
		if outcome.Subscription.Status == models.SubscriptionStatusPending {
			promoteID = outcome.Subscription.ID
		}

		if err := w.receipts.CreateWithPromotion(ctx, receipt, promoteID); err != nil {
			failed++
			w.logger.Error("failed to write webhook receipt",
				"subscription_id", outcome.Subscription.ID,
				"kol_id", outcome.KOL.ID,
				"error", err)
			continue
		}
		written++
	}

	return written, failed
}
