package tokenkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

const stateTokenByteLength = 32

// StateStore issues one-time anti-forgery states binding an authorization
// redirect to the user who initiated it. States are single use: Consume
// invalidates the record whether the surrounding flow succeeds or not.
type StateStore interface {
	// Issue creates a new state bound to the user with the configured TTL.
	Issue(ctx context.Context, userID string) (string, error)
	// Consume validates and invalidates an issued state, returning the bound user.
	Consume(ctx context.Context, state string) (string, error)
}

type stateEntry struct {
	userID    string
	expiresAt time.Time
}

type memoryStateStore struct {
	mutex   sync.Mutex
	entries map[string]stateEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStateStore constructs an in-memory StateStore with the provided TTL.
func NewMemoryStateStore(ttl time.Duration) StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &memoryStateStore{
		entries: make(map[string]stateEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (store *memoryStateStore) Issue(ctx context.Context, userID string) (string, error) {
	state, err := generateStateToken()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[state] = stateEntry{
		userID:    userID,
		expiresAt: store.now().Add(store.ttl),
	}
	return state, nil
}

func (store *memoryStateStore) Consume(ctx context.Context, state string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[state]
	if !ok {
		store.purgeExpiredLocked()
		return "", ErrStateNotFound
	}
	delete(store.entries, state)
	if store.now().After(entry.expiresAt) {
		store.purgeExpiredLocked()
		return "", ErrStateExpired
	}
	store.purgeExpiredLocked()
	return entry.userID, nil
}

func (store *memoryStateStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for state, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, state)
		}
	}
}

// generateStateToken draws a crypto-random state from a URL-safe alphabet.
// The encoded form is 43 characters, comfortably past the guessing bound.
func generateStateToken() (string, error) {
	buffer := make([]byte, stateTokenByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
