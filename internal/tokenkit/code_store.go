package tokenkit

import (
	"context"
	"sync"
	"time"
)

// CodeStore stages the one-time authorization code between the provider
// callback and the deferred token exchange. A user's slot is write-once;
// Take removes the code whether or not the exchange that follows succeeds,
// so a code can never be replayed.
type CodeStore interface {
	// Stage records the authorization code for the user with the configured TTL.
	Stage(ctx context.Context, userID string, code string) error
	// Take removes and returns the staged code for the user.
	Take(ctx context.Context, userID string) (string, error)
}

type codeEntry struct {
	code      string
	expiresAt time.Time
}

type memoryCodeStore struct {
	mutex   sync.Mutex
	entries map[string]codeEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCodeStore constructs an in-memory CodeStore with the provided TTL.
func NewMemoryCodeStore(ttl time.Duration) CodeStore {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &memoryCodeStore{
		entries: make(map[string]codeEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (store *memoryCodeStore) Stage(ctx context.Context, userID string, code string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	if _, occupied := store.entries[userID]; occupied {
		return ErrCodeAlreadyStaged
	}
	store.entries[userID] = codeEntry{
		code:      code,
		expiresAt: store.now().Add(store.ttl),
	}
	return nil
}

func (store *memoryCodeStore) Take(ctx context.Context, userID string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[userID]
	if !ok {
		return "", ErrCodeNotFound
	}
	delete(store.entries, userID)
	if store.now().After(entry.expiresAt) {
		return "", ErrCodeExpired
	}
	return entry.code, nil
}

func (store *memoryCodeStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for userID, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, userID)
		}
	}
}
