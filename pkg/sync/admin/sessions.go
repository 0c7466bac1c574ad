// Package admin implements cookie-based sessions for the administrative
// control plane. Sessions live in memory only and do not survive a restart.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/versesync/versesync/internal/logger"
)

// CookieName is the cookie carrying the admin session token.
const CookieName = "admin_session"

// SessionLifetime is how long an admin session stays valid.
const SessionLifetime = 24 * time.Hour

// cleanupInterval is how often the background sweep removes expired sessions.
const cleanupInterval = time.Hour

// Session is one authenticated admin browser session.
type Session struct {
	ID        string
	UserID    string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session lifetime has elapsed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Manager stores sessions keyed by token. Expired sessions are dropped both
// lazily (on lookup) and by the periodic sweep.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create opens a new session for a user and returns it. The session ID is
// 32 bytes of cryptographic randomness, URL-safe base64 encoded.
func (m *Manager) Create(userID, username string) (*Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(raw),
		UserID:    userID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionLifetime),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	logger.Info("admin session created", "user", username)
	return session, nil
}

// Get returns a live session by token, dropping it if expired.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if session.Expired() {
		delete(m.sessions, id)
		logger.Info("admin session expired", "user", session.Username)
		return nil, false
	}
	return session, true
}

// Delete removes a session (logout). Unknown tokens are ignored.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		logger.Info("admin session deleted", "user", session.Username)
	}
}

// Cleanup removes every expired session and returns how many were dropped.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if session.Expired() {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("cleaned up expired admin sessions", "count", removed)
	}
	return removed
}

// RunCleanup sweeps expired sessions periodically until ctx is cancelled.
// Meant to run in its own goroutine.
func (m *Manager) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}
