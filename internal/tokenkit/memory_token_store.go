package tokenkit

import (
	"context"
	"sync"
	"time"
)

// MemoryTokenStore is an in-memory store intended for tests and dev.
type MemoryTokenStore struct {
	mutex  sync.Mutex
	byUser map[string]TokenPair
	now    func() time.Time
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		byUser: make(map[string]TokenPair),
		now:    time.Now,
	}
}

// Get returns the stored pair or ErrTokenNotFound.
func (store *MemoryTokenStore) Get(ctx context.Context, userID string) (TokenPair, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	pair, ok := store.byUser[userID]
	if !ok {
		return TokenPair{}, ErrTokenNotFound
	}
	return pair, nil
}

// Put replaces the user's pair in one step under the store mutex.
func (store *MemoryTokenStore) Put(ctx context.Context, userID string, pair TokenPair) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.byUser[userID] = pair
	return nil
}

// Clear empties the token fields and marks the user disconnected, stamping
// the disconnect time like the database stores do. A user that was never
// stored still gets a cleared record so disconnect stays idempotent.
func (store *MemoryTokenStore) Clear(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.byUser[userID] = TokenPair{UpdatedAt: store.now().UTC()}
	return nil
}
