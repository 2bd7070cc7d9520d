package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionBusy(t *testing.T) {
	s := newSession("a")
	release, err := s.Begin()
	require.NoError(t, err)

	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrSessionBusy)

	release()
	release2, err := s.Begin()
	require.NoError(t, err)
	release2()
}

func TestSessionReferenceSingleUse(t *testing.T) {
	s := newSession("a")
	assert.Empty(t, s.TakeReference(time.Minute))

	s.SetReference("brief")
	assert.Equal(t, "brief", s.TakeReference(time.Minute))
	assert.Empty(t, s.TakeReference(time.Minute), "a reference serves one turn")

	s.SetReference("old")
	s.refAt = time.Now().Add(-time.Hour)
	assert.Empty(t, s.TakeReference(30*time.Minute), "stale references are dropped")
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(time.Hour, 2)
	defer m.Close()

	a, err := m.GetOrCreate("a")
	require.NoError(t, err)
	again, err := m.GetOrCreate("a")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, ok := m.Get("missing")
	assert.False(t, ok)

	// Make "a" the oldest, then overflow.
	a.mu.Lock()
	a.lastUsed = time.Now().Add(-time.Minute)
	a.mu.Unlock()
	_, err = m.GetOrCreate("b")
	require.NoError(t, err)
	_, err = m.GetOrCreate("c")
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, ok = m.Get("a")
	assert.False(t, ok, "least recently used session evicted")
}

func TestManagerEvictsExpired(t *testing.T) {
	m := NewManager(time.Minute, 0)
	defer m.Close()

	s, err := m.GetOrCreate("a")
	require.NoError(t, err)
	s.mu.Lock()
	s.lastUsed = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	m.evictExpired()
	assert.Equal(t, 0, m.Len())
}

func TestManagerKeepsBusySessions(t *testing.T) {
	m := NewManager(time.Minute, 2)
	defer m.Close()

	a, err := m.GetOrCreate("a")
	require.NoError(t, err)
	release, err := a.Begin()
	require.NoError(t, err)
	defer release()
	a.mu.Lock()
	a.lastUsed = time.Now().Add(-2 * time.Minute)
	a.mu.Unlock()

	m.evictExpired()
	_, ok := m.Get("a")
	assert.True(t, ok, "expired session with a turn in flight is kept")

	a.mu.Lock()
	a.lastUsed = time.Now().Add(-2 * time.Minute)
	a.mu.Unlock()
	_, err = m.GetOrCreate("b")
	require.NoError(t, err)
	_, err = m.GetOrCreate("c")
	require.NoError(t, err)

	_, ok = m.Get("a")
	assert.True(t, ok, "busy session is not chosen for eviction")
	_, ok = m.Get("b")
	assert.False(t, ok, "oldest idle session evicted instead")

	// Only busy sessions left: the cap is exceeded rather than dropping one.
	c, _ := m.Get("c")
	releaseC, err := c.Begin()
	require.NoError(t, err)
	defer releaseC()
	_, err = m.GetOrCreate("d")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
}

func TestManagerClosed(t *testing.T) {
	m := NewManager(time.Minute, 0)
	m.Close()
	m.Close()
	_, err := m.GetOrCreate("a")
	assert.ErrorIs(t, err, ErrManagerClosed)
}
