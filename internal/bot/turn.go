package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/qnabot/internal/domain"
	"github.com/ashureev/qnabot/internal/state"
	"github.com/ashureev/qnabot/internal/transcript"
)

// Sender delivers outbound activities to the channel.
type Sender interface {
	SendActivity(ctx context.Context, a *domain.Activity) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, a *domain.Activity) error

// SendActivity calls f.
func (f SenderFunc) SendActivity(ctx context.Context, a *domain.Activity) error {
	return f(ctx, a)
}

// TurnContext carries one inbound activity, its loaded state and the channel
// used for replies.
type TurnContext struct {
	Activity *domain.Activity

	conversation *state.Snapshot
	user         *state.Snapshot
	sender       Sender
	transcript   transcript.Logger
	now          func() time.Time
	sent         int
}

// ConversationState returns the conversation-scope snapshot of this turn.
func (tc *TurnContext) ConversationState() *state.Snapshot {
	return tc.conversation
}

// UserState returns the user-scope snapshot of this turn.
func (tc *TurnContext) UserState() *state.Snapshot {
	return tc.user
}

// Responded reports whether the turn has sent anything.
func (tc *TurnContext) Responded() bool {
	return tc.sent > 0
}

// Send addresses out as a reply to the inbound activity and delivers it.
func (tc *TurnContext) Send(ctx context.Context, out domain.Activity) error {
	reply := domain.AddressReply(tc.Activity, out, tc.now())
	if err := tc.sender.SendActivity(ctx, &reply); err != nil {
		return fmt.Errorf("send activity: %w", err)
	}
	tc.sent++
	tc.transcript.Log(transcriptEvent(&reply, transcript.DirectionOutbound))
	return nil
}

// SendText sends a plain text reply.
func (tc *TurnContext) SendText(ctx context.Context, text string) error {
	return tc.Send(ctx, domain.TextMessage(text))
}

func transcriptEvent(a *domain.Activity, direction string) transcript.Event {
	userID := a.From.ID
	if direction == transcript.DirectionOutbound {
		userID = a.Recipient.ID
	}
	ev := transcript.Event{
		ChannelID:      a.ChannelID,
		ConversationID: a.Conversation.ID,
		UserID:         userID,
		Direction:      direction,
		ActivityType:   string(a.Type),
		ActivityID:     a.ID,
		Text:           a.Text,
	}
	if a.SuggestedActions != nil {
		values := make([]string, 0, len(a.SuggestedActions.Actions))
		for _, action := range a.SuggestedActions.Actions {
			values = append(values, action.Value)
		}
		ev.Meta = map[string]any{"suggested_actions": values}
	}
	if len(a.MembersAdded) > 0 {
		ids := make([]string, 0, len(a.MembersAdded))
		for _, m := range a.MembersAdded {
			ids = append(ids, m.ID)
		}
		ev.Meta = map[string]any{"members_added": ids}
	}
	return ev
}
