package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/qna"
)

const maxActivityBytes = 64 << 10

// MessagesResponse is the body of a successful POST /api/messages.
type MessagesResponse struct {
	Activities []domain.Activity `json:"activities"`
}

// replyCollector buffers the replies of one turn for the HTTP response.
type replyCollector struct {
	mu   sync.Mutex
	sent []domain.Activity
}

func (c *replyCollector) SendActivity(_ context.Context, a *domain.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, *a)
	return nil
}

func (c *replyCollector) activities() []domain.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		return []domain.Activity{}
	}
	return append([]domain.Activity(nil), c.sent...)
}

// PostMessage runs one turn for the posted activity and returns the replies.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxActivityBytes)

	var act domain.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		Error(w, http.StatusBadRequest, "invalid activity")
		return
	}
	h.completeActivity(r.Context(), &act, ChannelHTTP)

	if act.From.ID == "" {
		Error(w, http.StatusBadRequest, "from.id is required")
		return
	}
	if act.IsMessage() && h.limiter != nil && !h.limiter.Allow(rateKey(&act)) {
		h.logger.Warn("Rate limit exceeded", "user_id", act.From.ID, "channel_id", act.ChannelID)
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	replies := &replyCollector{}
	if err := h.bot.Run(r.Context(), &act, replies); err != nil {
		h.logger.Error("Turn failed",
			"channel_id", act.ChannelID,
			"conversation_id", act.Conversation.ID,
			"user_id", act.From.ID,
			"error", err)

		var unavailable *qna.BackendUnavailableError
		if errors.As(err, &unavailable) {
			Error(w, http.StatusBadGateway, "answer backend unavailable")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to process activity")
		return
	}

	JSON(w, http.StatusOK, MessagesResponse{Activities: replies.activities()})
}
