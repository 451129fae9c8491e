package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/basedhq/backend/internal/store"
)

// Manager owns all live sessions: an explicit concurrent map of session ID to
// session record, created on connect and torn down on disconnect. Sessions
// are fully independent; the manager never locks across them.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	transcript store.Store
	logger     *zap.Logger
}

// NewManager creates a new session manager. The transcript store receives an
// append-only copy of every session's lifecycle and turns.
func NewManager(transcript store.Store, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		transcript: transcript,
		logger:     logger,
	}
}

// Create registers a new session for a fresh connection.
func (m *Manager) Create(ctx context.Context) *Session {
	sess := newSession("sess_" + uuid.New().String()[:8])

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	if err := m.transcript.CreateSession(ctx, sess.ID, sess.CreatedAt); err != nil {
		m.logger.Warn("failed to record session in transcript", zap.String("session_id", sess.ID), zap.Error(err))
	}
	m.logger.Info("session created", zap.String("session_id", sess.ID))
	return sess
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Remove discards a session and all its state on disconnect.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.transcript.CloseSession(ctx, id); err != nil {
		m.logger.Warn("failed to close session in transcript", zap.String("session_id", id), zap.Error(err))
	}
	m.logger.Info("session removed", zap.String("session_id", id))
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// AppendTurn appends a turn to the session history and records it in the
// transcript. Transcript failures are logged, never surfaced: the audit log
// must not break the live session.
func (m *Manager) AppendTurn(ctx context.Context, sess *Session, turn Turn) {
	sess.AppendTurn(turn)

	rec := &store.TurnRecord{
		TurnID:    "turn_" + uuid.New().String()[:8],
		SessionID: sess.ID,
		Role:      turn.Role,
		Prompt:    turn.Prompt,
		Filename:  turn.Filename,
		Code:      turn.Code,
		Diff:      turn.Diff,
		Context:   turn.Context,
		CreatedAt: time.Now(),
	}
	if err := m.transcript.AppendTurn(ctx, rec); err != nil {
		m.logger.Warn("failed to record turn in transcript", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
