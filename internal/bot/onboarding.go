package bot

import (
	"time"

	"github.com/ashureev/qnabot/internal/domain"
)

// OnboardingState is the onboarding position of a user in a conversation,
// derived once per turn from persisted state.
type OnboardingState int

const (
	// StateNeedNamePrompt: no name yet and no prompt outstanding.
	StateNeedNamePrompt OnboardingState = iota
	// StateAwaitingName: the next message is the user's name.
	StateAwaitingName
	// StateOnboarded: the user has a name; messages go to answer lookup.
	StateOnboarded
)

func (s OnboardingState) String() string {
	switch s {
	case StateNeedNamePrompt:
		return "need_name_prompt"
	case StateAwaitingName:
		return "awaiting_name"
	case StateOnboarded:
		return "onboarded"
	default:
		return "unknown"
	}
}

// DeriveState computes the onboarding state from persisted values.
func DeriveState(profile *domain.UserProfile, convo *domain.ConversationData) OnboardingState {
	switch {
	case profile.HasName():
		return StateOnboarded
	case convo.PromptedForUserName:
		return StateAwaitingName
	default:
		return StateNeedNamePrompt
	}
}

// Outcome is what one onboarding step decided.
type Outcome struct {
	From        OnboardingState
	Replies     []domain.Activity
	PassThrough bool
}

// Onboarding advances the name-collection dialog by one message.
type Onboarding struct {
	catalog  *Catalog
	location *time.Location
}

// NewOnboarding creates the state machine. Timestamps are rendered in loc.
func NewOnboarding(catalog *Catalog, loc *time.Location) *Onboarding {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Onboarding{catalog: catalog, location: loc}
}

// Step applies one inbound message to profile and convo in place. The
// message text is accepted verbatim as a name; there is no validation.
func (o *Onboarding) Step(profile *domain.UserProfile, convo *domain.ConversationData, msg *domain.Activity, now time.Time) Outcome {
	from := DeriveState(profile, convo)
	out := Outcome{From: from}

	switch from {
	case StateNeedNamePrompt:
		out.Replies = []domain.Activity{domain.TextMessage(o.catalog.NamePrompt)}
		convo.PromptedForUserName = true

	case StateAwaitingName:
		profile.Name = msg.Text
		out.Replies = []domain.Activity{
			domain.TextMessage(o.catalog.GreetingFor(profile.Name)),
			domain.SuggestedActionsMessage("", o.catalog.SuggestedActions...),
		}
		convo.PromptedForUserName = false

	case StateOnboarded:
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = now
		}
		convo.Timestamp = ts.In(o.location).Format(o.catalog.TimestampLayout)
		convo.ChannelID = msg.ChannelID
		out.PassThrough = true
	}

	return out
}
