// Package transcript writes an NDJSON record of every activity a turn
// receives or sends, one file per conversation.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Direction of an activity relative to the bot.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one transcript line.
type Event struct {
	Timestamp      string         `json:"ts"`
	ChannelID      string         `json:"channel_id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id,omitempty"`
	Direction      string         `json:"direction"`
	ActivityType   string         `json:"activity_type"`
	ActivityID     string         `json:"activity_id,omitempty"`
	Text           string         `json:"text,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Logger records transcript events.
type Logger interface {
	Log(Event)
	Close() error
}

// Noop discards events.
type Noop struct{}

// Log discards ev.
func (Noop) Log(Event) {}

// Close does nothing.
func (Noop) Close() error { return nil }

type fileLogger struct {
	dir    string
	queue  chan Event
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// New returns a Logger that appends events asynchronously under cfg.Dir.
// A disabled config yields Noop. Events are dropped when the queue is full.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("transcript directory is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &fileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "transcript"),
	}
	go l.run()
	return l, nil
}

func (l *fileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("transcript queue full, dropping event",
			"conversation_id", ev.ConversationID,
			"direction", ev.Direction)
	}
}

func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		if err := l.write(ev); err != nil {
			l.logger.Warn("failed to write transcript event", "error", err, "conversation_id", ev.ConversationID)
		}
	}
}

func (l *fileLogger) write(ev Event) error {
	path := Path(l.dir, ev.ChannelID, ev.ConversationID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode transcript event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append transcript event: %w", err)
	}
	return f.Close()
}

// Path returns the transcript file for a conversation under dir.
func Path(dir, channelID, conversationID string) string {
	return filepath.Join(dir, sanitize(channelID), sanitize(conversationID)+".ndjson")
}

func sanitize(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
