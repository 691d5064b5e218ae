package bot

import (
	"context"
)

// NextFunc continues to the following handler in the chain.
type NextFunc func(ctx context.Context) error

// HandlerFunc handles one activity kind. Not calling next ends the chain.
type HandlerFunc func(ctx context.Context, tc *TurnContext, next NextFunc) error

type dispatcher struct {
	message      []HandlerFunc
	membersAdded []HandlerFunc
}

func (d *dispatcher) handlersFor(tc *TurnContext) []HandlerFunc {
	switch {
	case tc.Activity.IsMessage():
		return d.message
	case tc.Activity.HasMembersAdded():
		return d.membersAdded
	default:
		return nil
	}
}

func (d *dispatcher) dispatch(ctx context.Context, tc *TurnContext) error {
	return runChain(ctx, tc, d.handlersFor(tc))
}

func runChain(ctx context.Context, tc *TurnContext, handlers []HandlerFunc) error {
	var step func(i int) NextFunc
	step = func(i int) NextFunc {
		return func(ctx context.Context) error {
			if i >= len(handlers) {
				return nil
			}
			return handlers[i](ctx, tc, step(i+1))
		}
	}
	return step(0)(ctx)
}
