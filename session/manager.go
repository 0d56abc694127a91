// Package session serializes chat handling per user.
package session

import (
	"sync"
	"time"
)

// Manager runs at most one chat exchange per user at a time. Different users
// proceed in parallel.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*userLock
	now   func() time.Time
}

type userLock struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

func NewManager() *Manager {
	return &Manager{locks: make(map[string]*userLock), now: time.Now}
}

// WithLock executes fn while holding the user's lock.
func (m *Manager) WithLock(userID string, fn func() error) error {
	m.mu.Lock()
	ul, ok := m.locks[userID]
	if !ok {
		ul = &userLock{}
		m.locks[userID] = ul
	}
	ul.refs++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		ul.refs--
		ul.lastUsed = m.now()
		m.mu.Unlock()
	}()

	ul.mu.Lock()
	defer ul.mu.Unlock()
	return fn()
}

// Cleanup drops locks that are idle and unused for longer than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for userID, ul := range m.locks {
		if ul.refs == 0 && now.Sub(ul.lastUsed) > maxAge {
			delete(m.locks, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
