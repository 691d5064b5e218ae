package state

import (
	"context"
	"time"

	"github.com/ashureev/qnabot/internal/store"
)

// DefaultSweepInterval is how often the sweeper looks for idle conversations.
const DefaultSweepInterval = 5 * time.Minute

// ExpireCallback is called with the storage key of each conversation the
// sweeper removed.
type ExpireCallback func(key string)

// StartSweeper runs a background goroutine that periodically deletes
// conversation records idle longer than ttl. User profiles are never swept.
func StartSweeper(ctx context.Context, conversations *BotState, ttl, interval time.Duration, onExpire ExpireCallback) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		conversations.logger.Info("State sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				SweepExpired(ctx, conversations, ttl, onExpire)
			case <-ctx.Done():
				conversations.logger.Info("State sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// SweepExpired performs one sweep and returns the number of records removed.
func SweepExpired(ctx context.Context, conversations *BotState, ttl time.Duration, onExpire ExpireCallback) int {
	logger := conversations.logger
	if conversations.scope != store.ScopeConversation {
		logger.Error("Sweeper refused non-conversation scope")
		return 0
	}

	keys, err := conversations.repo.ListStaleKeys(ctx, store.ScopeConversation, ttl)
	if err != nil {
		logger.Error("Sweeper failed to list stale conversations", "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	logger.Info("Sweeper found stale conversations", "count", len(keys))

	removed := 0
	for _, key := range keys {
		// A turn may have written the record since it was listed.
		deleted, err := conversations.DeleteIfStale(ctx, key, ttl)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("Sweeper interrupted", "key", key, "error", err)
				return removed
			}
			logger.Warn("Sweeper failed to delete conversation state", "key", key, "error", err)
			continue
		}
		if !deleted {
			logger.Debug("Sweeper skipped refreshed conversation", "key", key)
			continue
		}
		removed++
		if onExpire != nil {
			onExpire(key)
		}
	}

	logger.Info("Sweeper cleanup completed", "removed", removed)
	return removed
}
