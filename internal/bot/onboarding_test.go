package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/qnabot/internal/domain"
)

func TestDeriveState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		profile domain.UserProfile
		convo   domain.ConversationData
		want    OnboardingState
	}{
		{"fresh", domain.UserProfile{}, domain.ConversationData{}, StateNeedNamePrompt},
		{"prompted", domain.UserProfile{}, domain.ConversationData{PromptedForUserName: true}, StateAwaitingName},
		{"named", domain.UserProfile{Name: "Alice"}, domain.ConversationData{}, StateOnboarded},
		{"named wins over stale prompt", domain.UserProfile{Name: "Alice"}, domain.ConversationData{PromptedForUserName: true}, StateOnboarded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(&tt.profile, &tt.convo))
		})
	}
}

func TestOnboardingStepTransitions(t *testing.T) {
	t.Parallel()
	o := NewOnboarding(nil, time.UTC)
	profile := &domain.UserProfile{}
	convo := &domain.ConversationData{}
	msg := &domain.Activity{Type: domain.ActivityTypeMessage, ChannelID: "emulator", Text: "Alice"}

	out := o.Step(profile, convo, msg, time.Now())
	assert.Equal(t, StateNeedNamePrompt, out.From)
	assert.False(t, out.PassThrough)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, "What is your name?", out.Replies[0].Text)
	assert.True(t, convo.PromptedForUserName)
	assert.Empty(t, profile.Name)

	out = o.Step(profile, convo, msg, time.Now())
	assert.Equal(t, StateAwaitingName, out.From)
	assert.False(t, out.PassThrough)
	require.Len(t, out.Replies, 2)
	assert.Equal(t, "Alice", profile.Name)
	assert.False(t, convo.PromptedForUserName)
	assert.Empty(t, convo.Timestamp, "the naming turn records no audit timestamp")

	now := time.Date(2026, 3, 4, 17, 30, 0, 0, time.UTC)
	out = o.Step(profile, convo, msg, now)
	assert.Equal(t, StateOnboarded, out.From)
	assert.True(t, out.PassThrough)
	assert.Empty(t, out.Replies)
	assert.Equal(t, "3/4/2026, 5:30:00 PM", convo.Timestamp, "falls back to now without an activity timestamp")
	assert.Equal(t, "emulator", convo.ChannelID)
}

func TestOnboardingTimestampUsesLocation(t *testing.T) {
	t.Parallel()
	tokyo := time.FixedZone("JST", 9*60*60)
	o := NewOnboarding(nil, tokyo)
	profile := &domain.UserProfile{Name: "Alice"}
	convo := &domain.ConversationData{}
	msg := &domain.Activity{
		Type:      domain.ActivityTypeMessage,
		ChannelID: "webchat",
		Timestamp: time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC),
	}

	o.Step(profile, convo, msg, time.Time{})

	assert.Equal(t, "10/17/2026, 5:00:00 AM", convo.Timestamp)
	assert.Equal(t, "webchat", convo.ChannelID)
}

func TestOnboardingStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "need_name_prompt", StateNeedNamePrompt.String())
	assert.Equal(t, "awaiting_name", StateAwaitingName.String())
	assert.Equal(t, "onboarded", StateOnboarded.String())
	assert.Equal(t, "unknown", OnboardingState(42).String())
}
