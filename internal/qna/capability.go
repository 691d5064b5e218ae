package qna

import (
	"log/slog"
)

// Capability is either Live or Unconfigured. Call sites switch on the
// concrete type; the unexported method keeps the set closed.
type Capability interface {
	capability()
}

// Live wraps a usable backend.
type Live struct {
	Backend Backend
}

// Unconfigured records why no backend is available.
type Unconfigured struct {
	Err error
}

func (Live) capability()         {}
func (Unconfigured) capability() {}

// NewCapability builds a Client from cfg. Configuration faults are logged as
// a warning and produce Unconfigured for the life of the process.
func NewCapability(cfg Config, logger *slog.Logger, opts ...ClientOption) Capability {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := NewClient(cfg, append([]ClientOption{WithLogger(logger)}, opts...)...)
	if err != nil {
		logger.Warn("QnA Maker unavailable, check QnA settings in .env", "error", err)
		return Unconfigured{Err: err}
	}
	return Live{Backend: client}
}

// IsLive reports whether c can serve lookups.
func IsLive(c Capability) bool {
	live, ok := c.(Live)
	return ok && live.Backend != nil
}
