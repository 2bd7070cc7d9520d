package chat

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionBusy is returned when a session already has a turn in flight.
var ErrSessionBusy = errors.New("session is busy processing another request")

// ErrManagerClosed is returned by a Manager after Close.
var ErrManagerClosed = errors.New("session manager closed")

// Session is the per-client state kept between turns.
type Session struct {
	ID string

	run sync.Mutex

	mu        sync.Mutex
	lastUsed  time.Time
	reference string
	refAt     time.Time
}

func newSession(id string) *Session {
	return &Session{ID: id, lastUsed: time.Now()}
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns when the session was last touched.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Begin claims the session for one turn. The returned func releases it.
func (s *Session) Begin() (func(), error) {
	if !s.run.TryLock() {
		return nil, ErrSessionBusy
	}
	s.Touch()
	return s.run.Unlock, nil
}

// busy reports whether a turn is in flight.
func (s *Session) busy() bool {
	if !s.run.TryLock() {
		return true
	}
	s.run.Unlock()
	return false
}

// SetReference stores uploaded reference context for the next turn,
// replacing any earlier upload.
func (s *Session) SetReference(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reference = text
	s.refAt = time.Now()
}

// TakeReference returns the stored reference and clears it, so it is
// used by exactly one turn. References older than maxAge are discarded.
func (s *Session) TakeReference(maxAge time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.reference
	at := s.refAt
	s.reference = ""
	s.refAt = time.Time{}
	if ref == "" || (maxAge > 0 && time.Since(at) > maxAge) {
		return ""
	}
	return ref
}

// Manager keeps sessions in memory and evicts them after ttl of
// inactivity, or the least recently used one when max is reached.
type Manager struct {
	ttl time.Duration
	max int

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	stopCh   chan struct{}
}

// NewManager starts a manager and its eviction loop.
func NewManager(ttl time.Duration, max int) *Manager {
	m := &Manager{
		ttl:      ttl,
		max:      max,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(max(30*time.Second, m.ttl/2))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) evictExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.ttl && !s.busy() {
			delete(m.sessions, id)
		}
	}
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.Touch()
	}
	return s, ok
}

// GetOrCreate returns the session for id, creating it when needed.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[id]; ok {
		s.Touch()
		return s, nil
	}

	// Sessions with a turn in flight are never evicted. When every
	// session is busy the cap is exceeded until one finishes.
	if m.max > 0 && len(m.sessions) >= m.max {
		oldestID := ""
		var oldestTime time.Time
		for sid, s := range m.sessions {
			if s.busy() {
				continue
			}
			t := s.LastUsed()
			if oldestID == "" || t.Before(oldestTime) {
				oldestID = sid
				oldestTime = t
			}
		}
		if oldestID != "" {
			delete(m.sessions, oldestID)
		}
	}

	s := newSession(id)
	m.sessions[id] = s
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops eviction and forgets every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stopCh)
	m.sessions = map[string]*Session{}
}
