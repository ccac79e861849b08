package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/models"
)

// SubscriptionHandler serves the external subscription API.
type SubscriptionHandler struct {
	subscriptions models.SubscriptionRepository
	kols          models.KOLRepository
	maxPerUser    int
	logger        *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(subscriptions models.SubscriptionRepository, kols models.KOLRepository, maxPerUser int, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		kols:          kols,
		maxPerUser:    maxPerUser,
		logger:        logger,
	}
}

// SubscribeRequest is the body of POST /api/v1/subscriptions
type SubscribeRequest struct {
	XHandle    string                 `json:"xHandle"`
	WebhookURL string                 `json:"webhookURL"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// EditSubscriptionRequest is the body of PUT /api/v1/subscriptions/:id
type EditSubscriptionRequest struct {
	WebhookURL string                 `json:"webhookURL"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type subscriptionResponse struct {
	Data    *models.Subscription `json:"data"`
	Message string               `json:"message,omitempty"`
}

// HandleCollection routes /api/v1/subscriptions
func (h *SubscriptionHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.subscribe(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleItem routes /api/v1/subscriptions/:id
func (h *SubscriptionHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut, http.MethodPatch:
		h.edit(w, r, id)
	case http.MethodDelete:
		h.unsubscribe(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SubscriptionHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := APIUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	handle, err := ValidateHandle(req.XHandle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := ValidateWebhookURL(req.WebhookURL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := ValidateAPIMetadata(req.Metadata); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := h.subscriptions.CountByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count subscriptions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if count >= h.maxPerUser {
		http.Error(w, "Subscription limit reached", http.StatusForbidden)
		return
	}

	if _, err := h.subscriptions.GetByUserAndHandle(r.Context(), userID, handle); err == nil {
		http.Error(w, "Already subscribed to this handle", http.StatusConflict)
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		h.logger.Error("failed to check existing subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	kol, err := h.resolveOrCreateKOL(r, handle, userID)
	if err != nil {
		h.logger.Error("failed to resolve KOL", "handle", handle, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// The subscription only becomes active once a post for the KOL has been
	// observed; an already active KOL activates it immediately.
	status := models.SubscriptionStatusPending
	if kol.Status == models.KOLStatusActive {
		status = models.SubscriptionStatusActive
	}

	sub := &models.Subscription{
		KOLID:       kol.ID,
		Handle:      handle,
		UserID:      userID,
		WebhookURL:  req.WebhookURL,
		APIMetadata: req.Metadata,
		Status:      status,
	}
	if err := h.subscriptions.Create(r.Context(), sub); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			http.Error(w, "Already subscribed to this handle", http.StatusConflict)
			return
		}
		h.logger.Error("failed to create subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("subscription created",
		"user_id", userID,
		"handle", handle,
		"subscription_id", sub.ID)

	writeJSON(w, http.StatusCreated, subscriptionResponse{
		Data:    sub,
		Message: "Successfully subscribed",
	}, h.logger)
}

// resolveOrCreateKOL returns the monitored account for a handle, registering
// a pending one on first subscription.
func (h *SubscriptionHandler) resolveOrCreateKOL(r *http.Request, handle, userID string) (*models.KOL, error) {
	kol, err := h.kols.GetByHandle(r.Context(), handle)
	if err == nil {
		return kol, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	kol = &models.KOL{
		Handle:    handle,
		Status:    models.KOLStatusPending,
		CreatedBy: userID,
	}
	if err := h.kols.Create(r.Context(), kol); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			// Lost a race with a concurrent subscribe for the same handle.
			return h.kols.GetByHandle(r.Context(), handle)
		}
		return nil, err
	}
	return kol, nil
}

func (h *SubscriptionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := APIUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	subs, err := h.subscriptions.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list subscriptions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": subs}, h.logger)
}

func (h *SubscriptionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := APIUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionResponse{Data: sub}, h.logger)
}

func (h *SubscriptionHandler) edit(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := APIUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req EditSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := ValidateWebhookURL(req.WebhookURL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := ValidateAPIMetadata(req.Metadata); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sub.WebhookURL = req.WebhookURL
	sub.APIMetadata = req.Metadata
	if err := h.subscriptions.Update(r.Context(), sub); err != nil {
		h.logger.Error("failed to update subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionResponse{
		Data:    sub,
		Message: "Successfully edited subscription",
	}, h.logger)
}

func (h *SubscriptionHandler) unsubscribe(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := APIUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusDeleted
	sub.DeletedAt = &now
	if err := h.subscriptions.Update(r.Context(), sub); err != nil {
		h.logger.Error("failed to delete subscription", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("subscription deleted", "user_id", userID, "subscription_id", id)
	writeMessage(w, http.StatusOK, "Successfully unsubscribed", h.logger)
}
