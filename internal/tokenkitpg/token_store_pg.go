package tokenkitpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rosterlab/leaguelink/internal/tokenkit"
)

// PostgresTokenStore persists provider token pairs in PostgreSQL on a pgx
// pool. The single-row upsert is the atomicity guarantee: readers see either
// the previous or the new pair in full.
type PostgresTokenStore struct {
	pool  *pgxpool.Pool
	clock tokenkit.Clock
}

// NewPostgresTokenStore constructs a Postgres store.
func NewPostgresTokenStore(pool *pgxpool.Pool, clock tokenkit.Clock) *PostgresTokenStore {
	if clock == nil {
		clock = tokenkit.NewSystemClock()
	}
	return &PostgresTokenStore{pool: pool, clock: clock}
}

// Get returns the stored pair or tokenkit.ErrTokenNotFound.
func (store *PostgresTokenStore) Get(ctx context.Context, userID string) (tokenkit.TokenPair, error) {
	var accessToken, refreshToken string
	var expiresAtNS, updatedAtNS int64
	var connected bool
	row := store.pool.QueryRow(ctx, `
SELECT access_token, refresh_token, expires_at_ns, updated_at_ns, connected
FROM provider_tokens
WHERE user_id = $1
`, userID)
	if scanErr := row.Scan(&accessToken, &refreshToken, &expiresAtNS, &updatedAtNS, &connected); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return tokenkit.TokenPair{}, fmt.Errorf("token_store.get.pgx: %w", tokenkit.ErrTokenNotFound)
		}
		return tokenkit.TokenPair{}, fmt.Errorf("token_store.get.pgx: %w", scanErr)
	}
	pair := tokenkit.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Connected:    connected,
	}
	if expiresAtNS != 0 {
		pair.ExpiresAt = time.Unix(0, expiresAtNS).UTC()
	}
	if updatedAtNS != 0 {
		pair.UpdatedAt = time.Unix(0, updatedAtNS).UTC()
	}
	return pair, nil
}

// Put upserts the full pair for the user.
func (store *PostgresTokenStore) Put(ctx context.Context, userID string, pair tokenkit.TokenPair) error {
	var expiresAtNS, updatedAtNS int64
	if !pair.ExpiresAt.IsZero() {
		expiresAtNS = pair.ExpiresAt.UnixNano()
	}
	if !pair.UpdatedAt.IsZero() {
		updatedAtNS = pair.UpdatedAt.UnixNano()
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO provider_tokens (user_id, access_token, refresh_token, expires_at_ns, updated_at_ns, connected)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    expires_at_ns = EXCLUDED.expires_at_ns,
    updated_at_ns = EXCLUDED.updated_at_ns,
    connected = EXCLUDED.connected
`, userID, pair.AccessToken, pair.RefreshToken, expiresAtNS, updatedAtNS, pair.Connected)
	if execErr != nil {
		return fmt.Errorf("token_store.put.pgx: %w", execErr)
	}
	return nil
}

// Clear empties the token columns and marks the user disconnected. Idempotent.
func (store *PostgresTokenStore) Clear(ctx context.Context, userID string) error {
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO provider_tokens (user_id, access_token, refresh_token, expires_at_ns, updated_at_ns, connected)
VALUES ($1, '', '', 0, $2, FALSE)
ON CONFLICT (user_id) DO UPDATE SET
    access_token = '',
    refresh_token = '',
    expires_at_ns = 0,
    updated_at_ns = EXCLUDED.updated_at_ns,
    connected = FALSE
`, userID, store.clock.Now().UnixNano())
	if execErr != nil {
		return fmt.Errorf("token_store.clear.pgx: %w", execErr)
	}
	return nil
}
