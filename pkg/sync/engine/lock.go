package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/versesync/versesync/pkg/sync/models"
)

// LockInfo describes the holder of the global sync lock.
type LockInfo struct {
	UserID    string
	Username  string
	Operation models.OperationType
	LockedAt  time.Time
	Timeout   time.Duration

	token uint64
}

// Elapsed returns how long the lock has been held.
func (l *LockInfo) Elapsed() time.Duration {
	return time.Since(l.LockedAt)
}

// Expired reports whether the holder exceeded its timeout.
func (l *LockInfo) Expired() bool {
	return l.Elapsed() > l.Timeout
}

// LockHeldError is returned when the lock cannot be acquired. Its message is
// shown verbatim to clients waiting on a busy server.
type LockHeldError struct {
	Username  string
	Operation models.OperationType
	Elapsed   time.Duration
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("Server is busy - %s is currently %s files (started %d seconds ago)",
		e.Username, e.Operation, int(e.Elapsed.Seconds()))
}

// Is makes errors.Is(err, models.ErrLockHeld) work for lock denials.
func (e *LockHeldError) Is(target error) bool {
	return target == models.ErrLockHeld
}

// lock is the single process-wide exclusive sync lock. A held lock that
// outlives its timeout is treated as free: the next Acquire steals it. There
// is no queue; contenders simply get a denial and retry.
//
// Every acquisition gets a unique token. Release and HeldBy take the token,
// so a transaction whose lock expired and was stolen can never release the
// new holder's acquisition.
type lock struct {
	mu      sync.Mutex
	current *LockInfo
	seq     uint64
}

// Current returns the active lock holder, clearing and ignoring an expired
// one. Returns nil when the lock is free.
func (l *lock) Current() *LockInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked()
}

func (l *lock) currentLocked() *LockInfo {
	if l.current != nil && l.current.Expired() {
		l.current = nil
	}
	return l.current
}

// Acquire takes the lock for the given holder, returning the acquisition
// token, or a LockHeldError naming the current holder.
func (l *lock) Acquire(userID, username string, op models.OperationType, timeout time.Duration) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder := l.currentLocked(); holder != nil {
		return 0, &LockHeldError{
			Username:  holder.Username,
			Operation: holder.Operation,
			Elapsed:   holder.Elapsed(),
		}
	}

	l.seq++
	l.current = &LockInfo{
		UserID:    userID,
		Username:  username,
		Operation: op,
		LockedAt:  time.Now().UTC(),
		Timeout:   timeout,
		token:     l.seq,
	}
	return l.seq, nil
}

// HeldBy reports whether the given acquisition still holds the lock. An
// expired lock is cleared on the way, so a holder past its timeout observes
// false even before anyone steals the lock.
func (l *lock) HeldBy(token uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	holder := l.currentLocked()
	return holder != nil && holder.token == token
}

// Release frees the lock if the given acquisition still holds it. Releasing
// after expiry or steal is a no-op, never a theft from the new holder.
func (l *lock) Release(token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil && l.current.token == token {
		l.current = nil
	}
}
