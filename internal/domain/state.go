package domain

// UserProfile is the user-scoped state collected during onboarding.
type UserProfile struct {
	Name string `json:"name,omitempty"`
}

// HasName reports whether onboarding captured a name for the user.
func (p UserProfile) HasName() bool {
	return p.Name != ""
}

// ConversationData is the conversation-scoped onboarding flag plus an audit
// trail of the last answered message.
type ConversationData struct {
	PromptedForUserName bool   `json:"promptedForUserName"`
	Timestamp           string `json:"timestamp,omitempty"`
	ChannelID           string `json:"channelId,omitempty"`
}
