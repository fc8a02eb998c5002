package cart

import (
	"context"
	"slices"
	"sync"
	"time"
)

// SessionStore persists carts between requests of one checkout session.
// Load returns an empty cart for unknown or expired sessions.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, sessionID string, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	cart      Cart
	expiresAt time.Time
}

// MemorySessionStore keeps carts in process with a sliding TTL.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Load(_ context.Context, sessionID string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.sessions, sessionID)
		return New(), nil
	}
	entry.expiresAt = m.now().Add(m.ttl)
	m.sessions[sessionID] = entry
	return copyCart(entry.cart), nil
}

func (m *MemorySessionStore) Save(_ context.Context, sessionID string, c *Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sessionID] = memoryEntry{cart: *copyCart(*c), expiresAt: m.now().Add(m.ttl)}
	m.evictExpiredLocked()
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

func (m *MemorySessionStore) evictExpiredLocked() {
	now := m.now()
	for id, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
}

func copyCart(src Cart) *Cart {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	if dup.Lines == nil {
		dup.Lines = make([]Line, 0, 4)
	}
	return &dup
}
