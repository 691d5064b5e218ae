// Package identity gives browser clients a stable anonymous user id and a
// per-tab session id, for channels whose activities carry neither.
package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/qnabot/internal/domain"
)

const (
	AnonCookieName        = "qnabot_anon_id"
	SessionHeaderName     = "X-Chat-Session-ID"
	SessionQueryParam     = "session_id"
	DefaultSessionIDValue = "default"

	anonPrefix       = "anon_"
	maxSessionIDLen  = 128
	defaultCookieAge = 30 * 24 * time.Hour
)

// Identity is who is talking on a browser channel.
type Identity struct {
	UserID    string
	Name      string
	SessionID string
}

// Account returns the channel account of the user.
func (id Identity) Account() domain.ChannelAccount {
	return domain.ChannelAccount{ID: id.UserID, Name: id.Name}
}

// DefaultSession reports whether the client sent no usable session id.
func (id Identity) DefaultSession() bool {
	return id.SessionID == "" || id.SessionID == DefaultSessionIDValue
}

// ConversationID names the conversation of this user's tab. Each tab is its
// own conversation; user state is shared across tabs.
func (id Identity) ConversationID() string {
	if id.UserID == "" {
		return ""
	}
	session := id.SessionID
	if session == "" {
		session = DefaultSessionIDValue
	}
	return id.UserID + ":" + session
}

type contextKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware or NewContext.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// NewAnonID returns a fresh anonymous user id: "anon_" plus 32 hex digits.
func NewAnonID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return anonPrefix + hex.EncodeToString(u[:]), nil
}

// ValidAnonID reports whether id has the form produced by NewAnonID.
func ValidAnonID(id string) bool {
	rest, ok := strings.CutPrefix(id, anonPrefix)
	if !ok || len(rest) != 32 || strings.ToLower(rest) != rest {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// NormalizeSessionID trims id and replaces anything outside
// [A-Za-z0-9._:-]{1,128} with DefaultSessionIDValue.
func NormalizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxSessionIDLen {
		return DefaultSessionIDValue
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == ':', r == '-':
		default:
			return DefaultSessionIDValue
		}
	}
	return id
}

// DisplayName derives a short public name from an anonymous id.
func DisplayName(userID string) string {
	if len(userID) > len(anonPrefix)+8 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

// Options controls the anonymous identity cookie.
type Options struct {
	CookieName string
	CookieAge  time.Duration
	Secure     bool
}

// DefaultOptions returns the cookie settings for the deployment; cookies are
// Secure outside development.
func DefaultOptions(isDev bool) Options {
	return Options{
		CookieName: AnonCookieName,
		CookieAge:  defaultCookieAge,
		Secure:     !isDev,
	}
}

func (o Options) withDefaults() Options {
	if o.CookieName == "" {
		o.CookieName = AnonCookieName
	}
	if o.CookieAge <= 0 {
		o.CookieAge = defaultCookieAge
	}
	return o
}

// Middleware resolves the identity of each request, issuing a new anonymous
// id when the cookie is missing or malformed and refreshing it otherwise.
func Middleware(opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := opts.resolveUserID(r)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			opts.setCookie(w, userID)

			id := Identity{
				UserID:    userID,
				Name:      DisplayName(userID),
				SessionID: sessionIDFromRequest(r),
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}

func (o Options) resolveUserID(r *http.Request) (string, error) {
	if c, err := r.Cookie(o.CookieName); err == nil && ValidAnonID(c.Value) {
		return c.Value, nil
	}
	return NewAnonID()
}

func (o Options) setCookie(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.CookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(o.CookieAge.Seconds()),
		Expires:  time.Now().Add(o.CookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   o.Secure,
	})
}

// sessionIDFromRequest prefers the header; websocket clients cannot set
// headers and use the query parameter instead.
func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	return NormalizeSessionID(sid)
}
