// Package session owns per-connection state: conversation history, the
// workspace of named text buffers, the context accumulator, and the exclusive
// gate guarding mutating operations.
package session

import (
	"sort"
	"sync"
	"time"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is one entry in a session's conversation history. A user turn carries
// the instruction with its context snapshot and active filename; an agent
// turn carries the target filename and the produced code or diff. Turns are
// immutable once appended.
type Turn struct {
	Role       string
	Prompt     string   // user turns
	Context    []string // user turns: context snapshot at submission time
	ActiveFile string   // user turns
	Filename   string   // agent turns: target file
	Code       string   // agent turns: produced text
	Diff       string   // agent turns: produced diff
}

// Session is the state of one live connection. It is created on connect and
// discarded on disconnect; nothing survives the process.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.RWMutex
	history   []Turn
	workspace map[string]string
	context   []string

	gate sync.Mutex // exclusive gate for mutating operations
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		workspace: make(map[string]string),
	}
}

// TryAcquire attempts to take the session's exclusive gate without blocking.
// It returns false when another mutating operation is already in flight.
func (s *Session) TryAcquire() bool {
	return s.gate.TryLock()
}

// Release releases the exclusive gate.
func (s *Session) Release() {
	s.gate.Unlock()
}

// AppendTurn appends a turn to the history. History is append-only and never
// reordered.
func (s *Session) AppendTurn(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// WriteFile inserts or overwrites a workspace entry. Last write wins.
func (s *Session) WriteFile(filename, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspace[filename] = content
}

// ReadFile returns the content of a workspace entry.
func (s *Session) ReadFile(filename string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.workspace[filename]
	return content, ok
}

// Files returns the workspace filenames in sorted order.
func (s *Session) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]string, 0, len(s.workspace))
	for name := range s.workspace {
		files = append(files, name)
	}
	sort.Strings(files)
	return files
}

// HasFiles reports whether the workspace holds any entries.
func (s *Session) HasFiles() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspace) > 0
}

// AppendContext appends items to the context accumulator.
func (s *Session) AppendContext(items ...string) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = append(s.context, items...)
}

// Context returns a copy of the accumulated context items.
func (s *Session) Context() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.context))
	copy(out, s.context)
	return out
}
