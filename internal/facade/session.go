package facade

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/shopmesh/identity/internal/apperror"
)

// defaultSessionTTL bounds how long a cached API key survives without a
// fresh login. The user service may rotate the key sooner; the TTL just
// stops dead sessions accumulating.
const defaultSessionTTL = 24 * time.Hour

// Session is one caller's binding to an issued API key. At most one key
// per session: a new login overwrites it.
type Session struct {
	ID        string    `json:"id"`
	APIKey    string    `json:"api_key"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession creates a session for the given key with a fresh random ID.
func NewSession(username, apiKey string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        xid.New().String(),
		APIKey:    apiKey,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// SessionStore persists session bindings. Implementations must be safe
// for concurrent use.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	// Get returns the session, or apperror.ErrNotFound if it is absent
	// or expired.
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process SessionStore. Suitable for a single
// frontend instance and for tests; use RedisStore when the facade runs
// more than one replica.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

var _ SessionStore = (*MemoryStore)(nil)

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	if time.Now().After(s.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, apperror.NotFound("session", id)
	}

	copied := *s
	return &copied, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
