// Package api provides the HTTP and websocket channels of the bot.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/qnabot/internal/bot"
	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/identity"
)

// Channel ids stamped on activities that arrive without one.
const (
	ChannelHTTP    = "directline"
	ChannelWebchat = "webchat"
)

// BotAccount is the recipient of activities that do not name one.
var BotAccount = domain.ChannelAccount{ID: "qnabot", Name: "QnA Bot"}

// TurnRunner processes one inbound activity.
type TurnRunner interface {
	Run(ctx context.Context, act *domain.Activity, sender bot.Sender) error
}

// Handler provides common handler utilities.
type Handler struct {
	bot      TurnRunner
	limiter  *RateLimiter
	sessions *SessionManager
	logger   *slog.Logger
	now      func() time.Time

	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a new Handler with common dependencies. A nil limiter
// disables rate limiting.
func NewHandler(runner TurnRunner, limiter *RateLimiter, sessions *SessionManager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		sessions = NewSessionManager(logger)
	}
	return &Handler{
		bot:      runner,
		limiter:  limiter,
		sessions: sessions,
		logger:   logger.With("component", "api"),
		now:      time.Now,
		isDev:    true,
	}
}

// RegisterRoutes registers the channel endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/messages", h.PostMessage)
	r.Get("/ws/chat", h.ServeWebchat)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// completeActivity fills routing fields the client left out, using the
// anonymous identity of the request.
func (h *Handler) completeActivity(ctx context.Context, act *domain.Activity, channelID string) {
	if act.Type == "" {
		act.Type = domain.ActivityTypeMessage
	}
	if act.ID == "" {
		act.ID = domain.NewActivityID()
	}
	if act.Timestamp.IsZero() {
		act.Timestamp = h.now().UTC()
	}
	if act.ChannelID == "" {
		act.ChannelID = channelID
	}
	id, _ := identity.FromContext(ctx)
	if act.From.ID == "" {
		act.From = id.Account()
	}
	if act.Recipient.ID == "" {
		act.Recipient = BotAccount
	}
	if act.Conversation.ID == "" {
		act.Conversation.ID = id.ConversationID()
	}
}

// rateKey throttles per user, not per conversation, so rotating session ids
// does not bypass the limit.
func rateKey(act *domain.Activity) string {
	return act.ChannelID + "/" + act.From.ID
}
