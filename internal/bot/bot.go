// Package bot implements the turn controller: onboarding, answer lookup,
// member greeting and the end-of-turn state flush.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/qna"
	"github.com/ashureev/qnabot/internal/state"
	"github.com/ashureev/qnabot/internal/transcript"
)

// Property names inside the two state scopes.
const (
	ConversationDataProperty = "conversationData"
	UserProfileProperty      = "userProfile"
)

// Bot processes one activity per turn.
type Bot struct {
	conversationState *state.BotState
	userState         *state.BotState
	conversationData  state.Property[domain.ConversationData]
	userProfile       state.Property[domain.UserProfile]

	answers    qna.Capability
	onboarding *Onboarding
	catalog    *Catalog
	location   *time.Location
	transcript transcript.Logger
	logger     *slog.Logger
	now        func() time.Time

	handlers dispatcher
	locks    keyedMutex
}

// Option customizes a Bot.
type Option func(*Bot)

// WithLogger sets the bot logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCatalog replaces the reply texts.
func WithCatalog(c *Catalog) Option {
	return func(b *Bot) {
		if c != nil {
			b.catalog = c
		}
	}
}

// WithLocation sets the time zone used for the conversation audit timestamp.
func WithLocation(loc *time.Location) Option {
	return func(b *Bot) {
		if loc != nil {
			b.location = loc
		}
	}
}

// WithTranscript records inbound and outbound activities.
func WithTranscript(l transcript.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.transcript = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Bot over the two state scopes. A nil capability is treated
// as unconfigured.
func New(conversationState, userState *state.BotState, answers qna.Capability, opts ...Option) *Bot {
	if answers == nil {
		answers = qna.Unconfigured{Err: errors.New("no answer backend provided")}
	}

	b := &Bot{
		conversationState: conversationState,
		userState:         userState,
		conversationData:  state.NewProperty[domain.ConversationData](conversationState, ConversationDataProperty),
		userProfile:       state.NewProperty[domain.UserProfile](userState, UserProfileProperty),
		answers:           answers,
		catalog:           DefaultCatalog(),
		location:          time.Local,
		transcript:        transcript.Noop{},
		logger:            slog.Default(),
		now:               time.Now,
		locks:             keyedMutex{held: map[string]*lockEntry{}},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bot")
	b.onboarding = NewOnboarding(b.catalog, b.location)

	b.OnMessage(b.handleMessage)
	b.OnMembersAdded(b.greet)
	return b
}

// OnMessage appends a handler for message activities.
func (b *Bot) OnMessage(h HandlerFunc) {
	b.handlers.message = append(b.handlers.message, h)
}

// OnMembersAdded appends a handler for conversation updates that add members.
func (b *Bot) OnMembersAdded(h HandlerFunc) {
	b.handlers.membersAdded = append(b.handlers.membersAdded, h)
}

// AnswersConfigured reports whether answer lookup is live.
func (b *Bot) AnswersConfigured() bool {
	return qna.IsLive(b.answers)
}

// Run processes one activity. Turns on the same conversation are serialized.
// Both state scopes are flushed when the turn ends, including when a handler
// fails; a flush failure is joined to the turn error.
func (b *Bot) Run(ctx context.Context, act *domain.Activity, sender Sender) (err error) {
	if act == nil {
		return errors.New("activity is required")
	}
	if sender == nil {
		return errors.New("sender is required")
	}

	lockKey, err := state.ConversationKey(act)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}
	unlock := b.locks.lock(lockKey)
	defer unlock()

	b.transcript.Log(transcriptEvent(act, transcript.DirectionInbound))

	convSnap, err := b.conversationState.Load(ctx, act)
	if err != nil {
		return fmt.Errorf("load conversation state: %w", err)
	}
	userSnap, err := b.userState.Load(ctx, act)
	if err != nil {
		return fmt.Errorf("load user state: %w", err)
	}

	defer func() {
		if flushErr := b.flush(context.WithoutCancel(ctx), convSnap, userSnap); flushErr != nil {
			b.logger.Error("State flush failed", "conversation_key", lockKey, "error", flushErr)
			err = errors.Join(err, flushErr)
		}
	}()

	tc := &TurnContext{
		Activity:     act,
		conversation: convSnap,
		user:         userSnap,
		sender:       sender,
		transcript:   b.transcript,
		now:          b.now,
	}
	if err := b.handlers.dispatch(ctx, tc); err != nil {
		b.logger.Error("Turn failed",
			"channel_id", act.ChannelID,
			"conversation_id", act.Conversation.ID,
			"activity_type", act.Type,
			"error", err)
		return err
	}
	return nil
}

// flush saves conversation state, then user state.
func (b *Bot) flush(ctx context.Context, convSnap, userSnap *state.Snapshot) error {
	convErr := b.conversationState.SaveChanges(ctx, convSnap, false)
	userErr := b.userState.SaveChanges(ctx, userSnap, false)
	return errors.Join(convErr, userErr)
}

func (b *Bot) handleMessage(ctx context.Context, tc *TurnContext, next NextFunc) error {
	profile, err := b.userProfile.Get(tc.user, domain.UserProfile{})
	if err != nil {
		return err
	}
	convo, err := b.conversationData.Get(tc.conversation, domain.ConversationData{PromptedForUserName: false})
	if err != nil {
		return err
	}

	outcome := b.onboarding.Step(profile, convo, tc.Activity, b.now())
	b.logger.Debug("Onboarding step",
		"user_id", tc.Activity.From.ID,
		"conversation_id", tc.Activity.Conversation.ID,
		"state", outcome.From.String(),
		"pass_through", outcome.PassThrough)

	for _, reply := range outcome.Replies {
		if err := tc.Send(ctx, reply); err != nil {
			return err
		}
	}

	if outcome.PassThrough {
		if err := b.answer(ctx, tc); err != nil {
			return err
		}
	}
	return next(ctx)
}

// answer relays the top candidate for the message, or a fixed text when
// nothing matched or the backend is not configured.
func (b *Bot) answer(ctx context.Context, tc *TurnContext) error {
	switch c := b.answers.(type) {
	case qna.Unconfigured:
		return tc.SendText(ctx, b.catalog.Unconfigured)

	case qna.Live:
		if c.Backend == nil {
			return tc.SendText(ctx, b.catalog.Unconfigured)
		}
		b.logger.Info("Calling QnA Maker", "conversation_id", tc.Activity.Conversation.ID)

		candidates, err := c.Backend.Lookup(ctx, tc.Activity.Text)
		if err != nil {
			return fmt.Errorf("answer lookup: %w", err)
		}
		if len(candidates) == 0 {
			return tc.SendText(ctx, b.catalog.NoAnswer)
		}
		return tc.SendText(ctx, candidates[0].Answer)

	default:
		return fmt.Errorf("unsupported answer capability %T", c)
	}
}

// keyedMutex serializes work per key and forgets idle keys.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.held[key]
	if !ok {
		e = &lockEntry{}
		k.held[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}
