package journal

import (
	"context"
	"sync"
)

// MemStore keeps entries in memory, grouped by session. It is the default
// writer when no database is configured.
type MemStore struct {
	mu       sync.Mutex
	max      int
	sessions map[string][]Entry
}

var _ Writer = (*MemStore)(nil)

// NewMemStore returns a store keeping at most max entries per session
// (0 = unlimited). The oldest entries are evicted first.
func NewMemStore(max int) *MemStore {
	return &MemStore{max: max, sessions: make(map[string][]Entry)}
}

// Write implements [Writer].
func (m *MemStore) Write(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := append(m.sessions[e.SessionID], e)
	if m.max > 0 && len(s) > m.max {
		s = s[len(s)-m.max:]
	}
	m.sessions[e.SessionID] = s
	return nil
}

// List returns a copy of the entries of sessionID in write order.
func (m *MemStore) List(sessionID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.sessions[sessionID]))
	copy(out, m.sessions[sessionID])
	return out
}

// Kinds returns the kinds of the entries of sessionID in order.
func (m *MemStore) Kinds(sessionID string) []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Kind, 0, len(m.sessions[sessionID]))
	for _, e := range m.sessions[sessionID] {
		out = append(out, e.Kind)
	}
	return out
}

// Forget drops all entries of sessionID.
func (m *MemStore) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
