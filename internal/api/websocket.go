package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ashureev/qnabot/internal/bot"
	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/identity"
	"github.com/ashureev/qnabot/internal/state"
)

// wsFrame is a client frame on /ws/chat. Frames that are not JSON are taken
// as message text.
type wsFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// wsNotice is a control frame sent to the client.
type wsNotice struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// SetOriginPolicy restricts websocket upgrades to the given origins unless
// running in development.
func (h *Handler) SetOriginPolicy(allowedOrigins []string, isDev bool) {
	h.allowedOrigins = allowedOrigins
	h.isDev = isDev
}

// ServeWebchat upgrades to a websocket and runs one conversation over it.
// The bot joins with a conversationUpdate, then each client frame is a turn.
func (h *Handler) ServeWebchat(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	userID := id.UserID
	if !ok || userID == "" {
		Error(w, http.StatusUnauthorized, "missing identity")
		return
	}
	if !h.checkOrigin(r) {
		Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	conversationID := id.ConversationID()
	if id.DefaultSession() {
		conversationID = uuid.NewString()
	}
	template := domain.Activity{
		ChannelID:    ChannelWebchat,
		From:         id.Account(),
		Recipient:    BotAccount,
		Conversation: domain.ConversationAccount{ID: conversationID},
	}
	key, err := state.ConversationKey(&template)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sessions.Register(key, ws)
	defer h.sessions.Unregister(key, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sender := bot.SenderFunc(func(ctx context.Context, a *domain.Activity) error {
		return wsjson.Write(ctx, ws, a)
	})

	join := template
	join.Type = domain.ActivityTypeConversationUpdate
	join.MembersAdded = []domain.ChannelAccount{template.From, template.Recipient}
	h.completeActivity(ctx, &join, ChannelWebchat)
	if err := h.bot.Run(ctx, &join, sender); err != nil {
		h.logger.Error("Join turn failed", "conversation_key", key, "error", err)
		return
	}

	h.readLoop(ctx, ws, template, sender)
	h.logger.Info("Webchat session ended", "conversation_key", key)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, template domain.Activity, sender bot.Sender) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed", "user_id", template.From.ID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", template.From.ID)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			frame = wsFrame{Type: string(domain.ActivityTypeMessage), Text: string(data)}
		}

		switch frame.Type {
		case "ping":
			h.notify(ctx, ws, wsNotice{Type: "pong"})
			continue
		case "", string(domain.ActivityTypeMessage):
		default:
			h.notify(ctx, ws, wsNotice{Type: "error", Error: "unsupported frame type"})
			continue
		}

		act := template
		act.Type = domain.ActivityTypeMessage
		act.ID = ""
		act.Text = frame.Text
		h.completeActivity(ctx, &act, ChannelWebchat)

		if h.limiter != nil && !h.limiter.Allow(rateKey(&act)) {
			h.notify(ctx, ws, wsNotice{Type: "error", Error: "rate limit exceeded"})
			continue
		}
		if err := h.bot.Run(ctx, &act, sender); err != nil {
			h.logger.Error("Turn failed", "conversation_id", act.Conversation.ID, "error", err)
			if ctx.Err() != nil {
				return
			}
			h.notify(ctx, ws, wsNotice{Type: "error", Error: "failed to process message"})
		}
	}
}

func (h *Handler) notify(ctx context.Context, ws *websocket.Conn, n wsNotice) {
	if err := wsjson.Write(ctx, ws, n); err != nil {
		h.logger.Debug("Failed to send notice", "type", n.Type, "error", err)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.TrimRight(allowed, "/") == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}
