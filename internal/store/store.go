// Package store provides the append-only session transcript log. The log is
// write-only from the session layer: live session state never reads it back,
// sessions do not survive the process.
package store

import (
	"context"
	"time"
)

// TurnRecord is one persisted history entry.
type TurnRecord struct {
	TurnID    string
	SessionID string
	Role      string // user, agent
	Prompt    string
	Filename  string
	Code      string
	Diff      string
	Context   []string
	CreatedAt time.Time
}

// Store records session lifecycles and turns.
type Store interface {
	// CreateSession records a new session.
	CreateSession(ctx context.Context, sessionID string, createdAt time.Time) error

	// AppendTurn records one history entry.
	AppendTurn(ctx context.Context, rec *TurnRecord) error

	// CloseSession marks a session as disconnected.
	CloseSession(ctx context.Context, sessionID string) error

	// Close releases the underlying resources.
	Close() error
}

// NopStore discards everything. Used when no DB path is configured.
type NopStore struct{}

// Ensure NopStore implements Store.
var _ Store = (*NopStore)(nil)

func (NopStore) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) error {
	return nil
}

func (NopStore) AppendTurn(ctx context.Context, rec *TurnRecord) error { return nil }

func (NopStore) CloseSession(ctx context.Context, sessionID string) error { return nil }

func (NopStore) Close() error { return nil }
