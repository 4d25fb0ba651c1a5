package tokenkit

import (
	"context"
	"time"
)

// TokenPair is the durable provider credential record for one user.
// ExpiresAt is always derived server-side from the provider's expires_in at
// the moment of issuance or refresh, never taken from client input.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Connected    bool      `json:"connected"`
}

// Expired reports whether the access token is at or past its expiry.
func (pair TokenPair) Expired(now time.Time) bool {
	return !pair.ExpiresAt.After(now)
}

// TokenStore is the single source of truth for a user's provider credentials.
// Put replaces the whole pair atomically; readers observe either the full
// previous value or the full new value, never a partial write.
type TokenStore interface {
	// Get returns the stored pair or ErrTokenNotFound.
	Get(ctx context.Context, userID string) (TokenPair, error)
	// Put upserts the pair for the user without touching unrelated records.
	Put(ctx context.Context, userID string, pair TokenPair) error
	// Clear empties the token fields and marks the user disconnected. Idempotent.
	Clear(ctx context.Context, userID string) error
}
