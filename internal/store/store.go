// Package store provides scoped state persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a scope key.
var ErrNotFound = errors.New("not found")

// Scope is an isolation boundary for persisted bot state.
type Scope string

const (
	// ScopeUser holds state keyed by channel user.
	ScopeUser Scope = "user"
	// ScopeConversation holds state keyed by channel conversation.
	ScopeConversation Scope = "conversation"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeConversation
}

// Record is one persisted scope blob: a JSON object of named properties.
type Record struct {
	Scope     Scope
	Key       string
	Data      []byte
	UpdatedAt time.Time
}

// Repository defines the interface for persisting scoped bot state.
type Repository interface {
	// GetState retrieves the record for a scope key, or ErrNotFound.
	GetState(ctx context.Context, scope Scope, key string) (*Record, error)

	// PutState creates or replaces the record for a scope key.
	PutState(ctx context.Context, rec *Record) error

	// DeleteState removes the record for a scope key. Missing keys are not an error.
	DeleteState(ctx context.Context, scope Scope, key string) error

	// ListStaleKeys returns keys in scope not updated within ttl.
	ListStaleKeys(ctx context.Context, scope Scope, ttl time.Duration) ([]string, error)

	// DeleteStaleState removes the record for a scope key only if it was not
	// updated within ttl, and reports whether it did.
	DeleteStaleState(ctx context.Context, scope Scope, key string, ttl time.Duration) (bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
