package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the open webchat connection of each conversation.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
	logger *slog.Logger
}

// NewSessionManager creates a new session manager.
func NewSessionManager(logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		active: make(map[string]*websocket.Conn),
		logger: logger.With("component", "sessions"),
	}
}

// Get returns the open connection of a conversation key.
func (m *SessionManager) Get(key string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[key]
}

// Len returns the number of open connections.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register binds conn to key, closing any connection it replaces.
func (m *SessionManager) Register(key string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[key]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[key] = conn
	m.logger.Info("Webchat session registered", "conversation_key", key)
}

// Unregister removes conn if it is still the connection bound to key.
func (m *SessionManager) Unregister(key string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[key]; ok && current == conn {
		delete(m.active, key)
		m.logger.Info("Webchat session unregistered", "conversation_key", key)
	}
}

// Close terminates the connection of a conversation whose state expired.
func (m *SessionManager) Close(key string) {
	m.mu.Lock()
	conn, ok := m.active[key]
	delete(m.active, key)
	m.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "conversation expired")
	m.logger.Info("Webchat session closed", "conversation_key", key)
}
