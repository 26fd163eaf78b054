// Package session tracks per-conversation state: a bounded in-memory window
// of recent turns used for context assembly, and an optional durable audit
// log of turns in Postgres.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxTurns is the default size of the per-session turn window.
const DefaultMaxTurns = 8

// Turn is one completed query/answer exchange.
type Turn struct {
	Query  string
	Answer string
	At     time.Time
}

// Memory holds a bounded window of recent turns per session. When a session
// exceeds its window, the oldest turns are evicted first. All methods are
// safe for concurrent use; turns within one session are appended in the
// order Record is called.
type Memory struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]Turn
}

// NewMemory creates a conversation memory holding at most maxTurns turns per
// session. A non-positive maxTurns falls back to DefaultMaxTurns.
func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{
		maxTurns: maxTurns,
		sessions: make(map[string][]Turn),
	}
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Record appends a completed turn to the session's window, evicting the
// oldest turn when the window is full.
func (m *Memory) Record(sessionID string, turn Turn) error {
	if sessionID == "" {
		return fmt.Errorf("session ID must not be empty")
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.sessions[sessionID], turn)
	if len(turns) > m.maxTurns {
		turns = turns[len(turns)-m.maxTurns:]
	}
	m.sessions[sessionID] = turns
	return nil
}

// Recent returns the session's turns in chronological order, oldest first.
// An unknown session yields an empty slice. The returned slice is a copy.
func (m *Memory) Recent(sessionID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := m.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Forget drops all state for a session.
func (m *Memory) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len returns the number of turns currently held for a session.
func (m *Memory) Len(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[sessionID])
}
