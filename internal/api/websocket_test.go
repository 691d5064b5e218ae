package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/qna"
)

func dialWebchat(t *testing.T, h *Handler, query string) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(newTestRouter(h))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readActivity(ctx context.Context, t *testing.T, conn *websocket.Conn) domain.Activity {
	t.Helper()
	var act domain.Activity
	require.NoError(t, wsjson.Read(ctx, conn, &act))
	return act
}

func TestWebchatConversation(t *testing.T) {
	t.Parallel()
	b, _ := newTestBot(t, qna.Live{Backend: &fakeBackend{answers: []qna.Candidate{{Answer: "Bring your ID.", Score: 0.8}}}})
	h := NewHandler(b, nil, nil, nil)
	conn, ctx := dialWebchat(t, h, "?session_id=tab-1")

	welcome := readActivity(ctx, t, conn)
	assert.Equal(t, "Welcome to NanBoya Sample Bot. Type anything to get started.", welcome.Text)
	assert.Equal(t, ChannelWebchat, welcome.ChannelID)
	assert.Equal(t, BotAccount.ID, welcome.From.ID)
	assert.True(t, strings.HasSuffix(welcome.Conversation.ID, ":tab-1"))

	require.NoError(t, wsjson.Write(ctx, conn, wsFrame{Type: "message", Text: "hello"}))
	assert.Equal(t, "What is your name?", readActivity(ctx, t, conn).Text)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("Alice")))
	assert.Equal(t, "Hi Alice. How may I help you?.", readActivity(ctx, t, conn).Text)
	suggestions := readActivity(ctx, t, conn)
	require.NotNil(t, suggestions.SuggestedActions)
	assert.Equal(t, []string{welcome.Recipient.ID}, suggestions.SuggestedActions.To)

	require.NoError(t, wsjson.Write(ctx, conn, wsFrame{Text: "買取時に必要なものは？"}))
	assert.Equal(t, "Bring your ID.", readActivity(ctx, t, conn).Text)

	require.NoError(t, wsjson.Write(ctx, conn, wsFrame{Type: "ping"}))
	var pong wsNotice
	require.NoError(t, wsjson.Read(ctx, conn, &pong))
	assert.Equal(t, "pong", pong.Type)
}

func TestWebchatRejectsUnknownFrame(t *testing.T) {
	t.Parallel()
	b, _ := newTestBot(t, nil)
	conn, ctx := dialWebchat(t, NewHandler(b, nil, nil, nil), "")

	readActivity(ctx, t, conn)
	require.NoError(t, wsjson.Write(ctx, conn, wsFrame{Type: "resize"}))

	var notice wsNotice
	require.NoError(t, wsjson.Read(ctx, conn, &notice))
	assert.Equal(t, wsNotice{Type: "error", Error: "unsupported frame type"}, notice)
}

func TestWebchatRateLimited(t *testing.T) {
	t.Parallel()
	b, _ := newTestBot(t, nil)
	conn, ctx := dialWebchat(t, NewHandler(b, NewRateLimiter(1, time.Minute), nil, nil), "")

	readActivity(ctx, t, conn)
	require.NoError(t, wsjson.Write(ctx, conn, wsFrame{Text: "one"}))
	assert.Equal(t, "What is your name?", readActivity(ctx, t, conn).Text)

	require.NoError(t, wsjson.Write(ctx, conn, wsFrame{Text: "two"}))
	var notice wsNotice
	require.NoError(t, wsjson.Read(ctx, conn, &notice))
	assert.Equal(t, "rate limit exceeded", notice.Error)
}

func TestWebchatClosedWhenConversationExpires(t *testing.T) {
	t.Parallel()
	b, _ := newTestBot(t, nil)
	sessions := NewSessionManager(nil)
	conn, ctx := dialWebchat(t, NewHandler(b, nil, sessions, nil), "?session_id=tab-7")

	welcome := readActivity(ctx, t, conn)
	key := welcome.ChannelID + "/conversations/" + welcome.Conversation.ID
	require.NotNil(t, sessions.Get(key))
	assert.Equal(t, 1, sessions.Len())

	sessions.Close(key)

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	assert.Eventually(t, func() bool { return sessions.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebchatOriginPolicy(t *testing.T) {
	t.Parallel()
	b, _ := newTestBot(t, nil)
	h := NewHandler(b, nil, nil, nil)
	h.SetOriginPolicy([]string{"https://chat.example.com"}, false)

	req := httptest.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, h.checkOrigin(req))

	h.SetOriginPolicy(nil, true)
	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, h.checkOrigin(req))
}
