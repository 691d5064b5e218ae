// Package state layers turn-scoped caching and typed property accessors over
// a store.Repository.
//
// A turn loads one Snapshot per scope, reads and mutates properties through
// Property accessors, and flushes the snapshot with SaveChanges. Nothing is
// written to the repository before SaveChanges.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/shared"
	"github.com/ashureev/qnabot/internal/store"
)

// KeyFunc derives the storage key of a scope from an inbound activity.
type KeyFunc func(a *domain.Activity) (string, error)

// BotState binds one scope of a repository to a key derivation rule.
type BotState struct {
	scope  store.Scope
	repo   store.Repository
	keyFn  KeyFunc
	logger *slog.Logger
}

// New creates a BotState for an arbitrary scope.
func New(scope store.Scope, repo store.Repository, keyFn KeyFunc, logger *slog.Logger) *BotState {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotState{
		scope:  scope,
		repo:   repo,
		keyFn:  keyFn,
		logger: logger.With("component", "state", "scope", string(scope)),
	}
}

// NewUserState creates the user-scoped state keyed by channel and sender.
func NewUserState(repo store.Repository, logger *slog.Logger) *BotState {
	return New(store.ScopeUser, repo, UserKey, logger)
}

// NewConversationState creates the conversation-scoped state keyed by channel
// and conversation.
func NewConversationState(repo store.Repository, logger *slog.Logger) *BotState {
	return New(store.ScopeConversation, repo, ConversationKey, logger)
}

// UserKey returns "{channelId}/users/{userId}".
func UserKey(a *domain.Activity) (string, error) {
	if a.ChannelID == "" {
		return "", errors.New("activity channelId is required for user state")
	}
	if a.From.ID == "" {
		return "", errors.New("activity from.id is required for user state")
	}
	return a.ChannelID + "/users/" + a.From.ID, nil
}

// ConversationKey returns "{channelId}/conversations/{conversationId}".
func ConversationKey(a *domain.Activity) (string, error) {
	if a.ChannelID == "" {
		return "", errors.New("activity channelId is required for conversation state")
	}
	if a.Conversation.ID == "" {
		return "", errors.New("activity conversation.id is required for conversation state")
	}
	return a.ChannelID + "/conversations/" + a.Conversation.ID, nil
}

// ParseConversationKey splits a key produced by ConversationKey.
func ParseConversationKey(key string) (channelID, conversationID string, ok bool) {
	channelID, conversationID, ok = strings.Cut(key, "/conversations/")
	if !ok || channelID == "" || conversationID == "" {
		return "", "", false
	}
	return channelID, conversationID, true
}

// Scope returns the scope this state is bound to.
func (s *BotState) Scope() store.Scope {
	return s.scope
}

// Snapshot is the turn-local cache of one scope record.
type Snapshot struct {
	scope  store.Scope
	key    string
	raw    map[string]json.RawMessage
	values map[string]any
	loaded []byte
}

// Key returns the storage key of the snapshot.
func (s *Snapshot) Key() string {
	return s.key
}

// Scope returns the scope the snapshot was loaded from.
func (s *Snapshot) Scope() store.Scope {
	return s.scope
}

// Load reads the scope record for the activity into a new Snapshot. A
// missing record yields an empty snapshot.
func (s *BotState) Load(ctx context.Context, a *domain.Activity) (*Snapshot, error) {
	key, err := s.keyFn(a)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		scope:  s.scope,
		key:    key,
		raw:    map[string]json.RawMessage{},
		values: map[string]any{},
		loaded: []byte("{}"),
	}

	rec, err := s.repo.GetState(ctx, s.scope, key)
	if errors.Is(err, store.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s state %q: %w", s.scope, key, err)
	}

	if err := json.Unmarshal(rec.Data, &snap.raw); err != nil {
		return nil, fmt.Errorf("decode %s state %q: %w", s.scope, key, err)
	}
	canonical, err := json.Marshal(snap.raw)
	if err != nil {
		return nil, fmt.Errorf("encode %s state %q: %w", s.scope, key, err)
	}
	snap.loaded = canonical
	return snap, nil
}

// SaveChanges writes the snapshot back when its content differs from what was
// loaded, or unconditionally when force is set.
func (s *BotState) SaveChanges(ctx context.Context, snap *Snapshot, force bool) error {
	if snap == nil {
		return nil
	}
	if snap.scope != s.scope {
		return fmt.Errorf("snapshot scope %q does not match state scope %q", snap.scope, s.scope)
	}

	for name, v := range snap.values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode property %q: %w", name, err)
		}
		snap.raw[name] = data
	}
	data, err := json.Marshal(snap.raw)
	if err != nil {
		return fmt.Errorf("encode %s state %q: %w", s.scope, snap.key, err)
	}
	if !force && bytes.Equal(data, snap.loaded) {
		return nil
	}

	rec := &store.Record{Scope: s.scope, Key: snap.key, Data: data}
	err = shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func() error {
		return s.repo.PutState(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("save %s state %q: %w", s.scope, snap.key, err)
	}

	snap.loaded = data
	s.logger.Debug("state saved", "key", snap.key, "bytes", len(data))
	return nil
}

// DeleteIfStale removes the record of a key from this scope unless it was
// written within ttl. It reports whether the record was removed.
func (s *BotState) DeleteIfStale(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var removed bool
	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		var err error
		removed, err = s.repo.DeleteStaleState(ctx, s.scope, key, ttl)
		return err
	})
	return removed, err
}

// Property is a typed accessor for one named value inside a scope record.
type Property[T any] struct {
	scope store.Scope
	name  string
}

// NewProperty creates an accessor for name within the scope of s.
func NewProperty[T any](s *BotState, name string) Property[T] {
	return Property[T]{scope: s.scope, name: name}
}

// Name returns the property name.
func (p Property[T]) Name() string {
	return p.name
}

// Get returns a pointer to the cached value, decoding it on first access or
// installing def when the record holds no value. Mutations through the
// pointer are persisted by the next SaveChanges.
func (p Property[T]) Get(snap *Snapshot, def T) (*T, error) {
	if err := p.check(snap); err != nil {
		return nil, err
	}

	if v, ok := snap.values[p.name]; ok {
		typed, ok := v.(*T)
		if !ok {
			return nil, fmt.Errorf("property %q holds %T", p.name, v)
		}
		return typed, nil
	}

	value := def
	if raw, ok := snap.raw[p.name]; ok {
		var decoded T
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode property %q: %w", p.name, err)
		}
		value = decoded
	}
	snap.values[p.name] = &value
	return &value, nil
}

// Set replaces the cached value.
func (p Property[T]) Set(snap *Snapshot, value T) error {
	if err := p.check(snap); err != nil {
		return err
	}
	snap.values[p.name] = &value
	return nil
}

// Delete drops the value from the record.
func (p Property[T]) Delete(snap *Snapshot) error {
	if err := p.check(snap); err != nil {
		return err
	}
	delete(snap.values, p.name)
	delete(snap.raw, p.name)
	return nil
}

func (p Property[T]) check(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("property %q: state not loaded", p.name)
	}
	if snap.scope != p.scope {
		return fmt.Errorf("property %q belongs to scope %q, snapshot is %q", p.name, p.scope, snap.scope)
	}
	return nil
}
