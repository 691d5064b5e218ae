// Package domain contains core domain types for the QnA bot.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType identifies the kind of activity delivered by a channel.
type ActivityType string

const (
	// ActivityTypeMessage is a user utterance.
	ActivityTypeMessage ActivityType = "message"
	// ActivityTypeConversationUpdate reports membership changes.
	ActivityTypeConversationUpdate ActivityType = "conversationUpdate"
)

// ActionTypeIMBack posts the action value back to the bot as a message.
const ActionTypeIMBack = "imBack"

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CardAction is a single clickable suggestion.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SuggestedActions bundles canned replies offered alongside a message.
type SuggestedActions struct {
	To      []string     `json:"to,omitempty"`
	Actions []CardAction `json:"actions"`
}

// Activity is the unit exchanged with a channel in both directions.
type Activity struct {
	Type             ActivityType        `json:"type"`
	ID               string              `json:"id,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
	ChannelID        string              `json:"channelId"`
	From             ChannelAccount      `json:"from"`
	Recipient        ChannelAccount      `json:"recipient"`
	Conversation     ConversationAccount `json:"conversation"`
	Text             string              `json:"text,omitempty"`
	MembersAdded     []ChannelAccount    `json:"membersAdded,omitempty"`
	SuggestedActions *SuggestedActions   `json:"suggestedActions,omitempty"`
	ReplyToID        string              `json:"replyToId,omitempty"`
}

// NewActivityID returns a fresh activity identifier.
func NewActivityID() string {
	return uuid.NewString()
}

// IsMessage reports whether the activity carries a user utterance.
func (a *Activity) IsMessage() bool {
	return a.Type == ActivityTypeMessage
}

// HasMembersAdded reports whether the activity announces joining participants.
func (a *Activity) HasMembersAdded() bool {
	return a.Type == ActivityTypeConversationUpdate && len(a.MembersAdded) > 0
}

// TextMessage builds an unaddressed outbound message.
func TextMessage(text string) Activity {
	return Activity{Type: ActivityTypeMessage, Text: text}
}

// SuggestedActionsMessage builds an unaddressed message offering imBack suggestions.
func SuggestedActionsMessage(text string, choices ...string) Activity {
	actions := make([]CardAction, 0, len(choices))
	for _, c := range choices {
		actions = append(actions, CardAction{Type: ActionTypeIMBack, Title: c, Value: c})
	}
	return Activity{
		Type:             ActivityTypeMessage,
		Text:             text,
		SuggestedActions: &SuggestedActions{Actions: actions},
	}
}

// AddressReply fills routing fields of out so it answers in, swapping the
// sender and recipient of the inbound activity.
func AddressReply(in *Activity, out Activity, now time.Time) Activity {
	if out.Type == "" {
		out.Type = ActivityTypeMessage
	}
	if out.ID == "" {
		out.ID = NewActivityID()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = now.UTC()
	}
	out.ChannelID = in.ChannelID
	out.From = in.Recipient
	out.Recipient = in.From
	out.Conversation = in.Conversation
	out.ReplyToID = in.ID
	if out.SuggestedActions != nil && len(out.SuggestedActions.To) == 0 && in.From.ID != "" {
		out.SuggestedActions.To = []string{in.From.ID}
	}
	return out
}
