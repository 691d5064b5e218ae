package bot

import (
	"context"
)

// greet welcomes every added member except the bot itself.
func (b *Bot) greet(ctx context.Context, tc *TurnContext, next NextFunc) error {
	for _, member := range tc.Activity.MembersAdded {
		if member.ID == tc.Activity.Recipient.ID {
			continue
		}
		if err := tc.SendText(ctx, b.catalog.Welcome); err != nil {
			return err
		}
	}
	return next(ctx)
}
