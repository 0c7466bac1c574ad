package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager()

	session, err := m.Create("user-1", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "admin", session.Username)
	assert.WithinDuration(t, session.CreatedAt.Add(SessionLifetime), session.ExpiresAt, time.Second)

	got, ok := m.Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, session.ID, got.ID)
}

func TestManager_TokensAreUnique(t *testing.T) {
	m := NewManager()

	a, err := m.Create("u", "admin")
	require.NoError(t, err)
	b, err := m.Create("u", "admin")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestManager_GetUnknownToken(t *testing.T) {
	m := NewManager()

	_, ok := m.Get("no-such-token")
	assert.False(t, ok)

	_, ok = m.Get("")
	assert.False(t, ok)
}

func TestManager_GetExpiredSessionDropsIt(t *testing.T) {
	m := NewManager()

	session, err := m.Create("u", "admin")
	require.NoError(t, err)
	session.ExpiresAt = time.Now().Add(-time.Minute)

	_, ok := m.Get(session.ID)
	assert.False(t, ok)

	// The expired session was removed, not just hidden
	m.mu.Lock()
	_, stillThere := m.sessions[session.ID]
	m.mu.Unlock()
	assert.False(t, stillThere)
}

func TestManager_Delete(t *testing.T) {
	m := NewManager()

	session, err := m.Create("u", "admin")
	require.NoError(t, err)

	m.Delete(session.ID)
	_, ok := m.Get(session.ID)
	assert.False(t, ok)

	// Deleting an unknown token is a no-op
	m.Delete("no-such-token")
}

func TestManager_Cleanup(t *testing.T) {
	m := NewManager()

	live, err := m.Create("u1", "admin")
	require.NoError(t, err)
	expired, err := m.Create("u2", "admin")
	require.NoError(t, err)
	expired.ExpiresAt = time.Now().Add(-time.Hour)

	removed := m.Cleanup()
	assert.Equal(t, 1, removed)

	_, ok := m.Get(live.ID)
	assert.True(t, ok)
	_, ok = m.Get(expired.ID)
	assert.False(t, ok)
}
