package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/auth"
	"github.com/kolwatch/kolwatch/internal/models"
)

// AdminHandler serves the JWT-protected admin surface: user provisioning and
// visibility into monitored accounts.
type AdminHandler struct {
	users     models.UserRepository
	keys      models.APIKeyRepository
	kols      models.KOLRepository
	kolTweets models.KOLTweetRepository
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(users models.UserRepository, keys models.APIKeyRepository, kols models.KOLRepository, kolTweets models.KOLTweetRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		users:     users,
		keys:      keys,
		kols:      kols,
		kolTweets: kolTweets,
		logger:    logger,
	}
}

// CreateUserRequest is the body of POST /api/admin/users
type CreateUserRequest struct {
	DisplayName    string `json:"displayName"`
	TelegramChatID *int64 `json:"telegramChatID,omitempty"`
}

// CreateUserResponse returns the new user and the plaintext API key. The key
// is shown exactly once; only its hash is stored.
type CreateUserResponse struct {
	User   *models.User `json:"user"`
	APIKey string       `json:"apiKey"`
}

// CreateUser handles POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user := &models.User{
		DisplayName:    req.DisplayName,
		TelegramChatID: req.TelegramChatID,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		h.logger.Error("failed to create user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.Error("failed to generate api key", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	key := &models.APIKey{
		UserID:  user.ID,
		KeyHash: auth.HashAPIKey(plaintext),
	}
	if err := h.keys.Create(r.Context(), key); err != nil {
		h.logger.Error("failed to store api key", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user created", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, CreateUserResponse{User: user, APIKey: plaintext}, h.logger)
}

// ListKOLs handles GET /api/admin/kols
func (h *AdminHandler) ListKOLs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	kols, err := h.kols.ListAll(r.Context(), includeDeleted)
	if err != nil {
		h.logger.Error("failed to list kols", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if kols == nil {
		kols = []*models.KOL{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": kols}, h.logger)
}

// KOLItem handles GET /api/admin/kols/:id and GET /api/admin/kols/:id/tweets
func (h *AdminHandler) KOLItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/kols/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "Invalid KOL ID", http.StatusBadRequest)
		return
	}

	switch sub {
	case "":
		h.getKOL(w, r, id)
	case "tweets":
		h.listKOLTweets(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *AdminHandler) getKOL(w http.ResponseWriter, r *http.Request, id string) {
	kol, err := h.kols.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "KOL not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get kol", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": kol}, h.logger)
}

func (h *AdminHandler) listKOLTweets(w http.ResponseWriter, r *http.Request, id string) {
	tweets, err := h.kolTweets.ListByKOL(r.Context(), id, 50)
	if err != nil {
		h.logger.Error("failed to list kol tweets", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if tweets == nil {
		tweets = []*models.KOLTweet{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": tweets}, h.logger)
}
