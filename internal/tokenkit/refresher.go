package tokenkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const oauthErrorInvalidGrant = "invalid_grant"

// fallbackAccessTokenLifetime is assumed when the provider omits expires_in.
const fallbackAccessTokenLifetime = time.Hour

// Refresher exchanges a user's refresh token for a fresh pair and commits it
// to the token store. Concurrent callers for the same user are collapsed onto
// one provider exchange; every caller observes the same committed result.
type Refresher struct {
	config     ProviderConfig
	tokens     TokenStore
	clock      Clock
	logger     *zap.Logger
	httpClient *http.Client
	group      singleflight.Group
}

// NewRefresher wires the refresher dependencies. A nil httpClient falls back
// to http.DefaultClient; a nil logger becomes a no-op logger.
func NewRefresher(config ProviderConfig, tokens TokenStore, clock Clock, logger *zap.Logger, httpClient *http.Client) *Refresher {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Refresher{
		config:     config,
		tokens:     tokens,
		clock:      clock,
		logger:     logger,
		httpClient: httpClient,
	}
}

// Refresh performs at most one in-flight provider exchange per user. The
// exchange runs detached from the caller's context so an abandoned request
// still commits its result for the callers queued behind it.
func (refresher *Refresher) Refresh(ctx context.Context, userID string) (TokenPair, error) {
	result, err, _ := refresher.group.Do(userID, func() (interface{}, error) {
		return refresher.refreshOnce(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return TokenPair{}, err
	}
	pair, ok := result.(TokenPair)
	if !ok {
		return TokenPair{}, fmt.Errorf("refresher.internal: unexpected result type %T", result)
	}
	return pair, nil
}

func (refresher *Refresher) refreshOnce(ctx context.Context, userID string) (TokenPair, error) {
	if validateErr := refresher.config.Validate(); validateErr != nil {
		return TokenPair{}, validateErr
	}
	previous, getErr := refresher.tokens.Get(ctx, userID)
	if getErr != nil {
		if errors.Is(getErr, ErrTokenNotFound) {
			return TokenPair{}, ErrNoToken
		}
		return TokenPair{}, fmt.Errorf("refresher.load: %w", getErr)
	}
	if strings.TrimSpace(previous.RefreshToken) == "" {
		return TokenPair{}, ErrNoToken
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, refresher.httpClient)
	source := refresher.config.OAuth2Config().TokenSource(exchangeCtx, &oauth2.Token{
		RefreshToken: previous.RefreshToken,
	})
	token, exchangeErr := source.Token()
	if exchangeErr != nil {
		return refresher.classifyFailure(ctx, userID, exchangeErr)
	}

	now := refresher.clock.Now()
	pair := TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.UTC(),
		UpdatedAt:    now,
		Connected:    true,
	}
	// Providers are not required to rotate the refresh token on every call.
	if strings.TrimSpace(pair.RefreshToken) == "" {
		pair.RefreshToken = previous.RefreshToken
	}
	if token.Expiry.IsZero() {
		pair.ExpiresAt = now.Add(fallbackAccessTokenLifetime)
	}
	if putErr := refresher.tokens.Put(ctx, userID, pair); putErr != nil {
		return TokenPair{}, fmt.Errorf("refresher.commit: %w", putErr)
	}
	refresher.logger.Info("provider tokens refreshed",
		zap.String("user_id", userID),
		zap.Time("expires_at", pair.ExpiresAt),
	)
	return pair, nil
}

// classifyFailure maps a provider exchange failure onto the error taxonomy.
// invalid_grant is terminal: the stored pair is cleared and the user must
// reconnect. Anything else leaves the pair untouched for a later retry.
func (refresher *Refresher) classifyFailure(ctx context.Context, userID string, exchangeErr error) (TokenPair, error) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(exchangeErr, &retrieveErr) {
		if retrieveErr.ErrorCode == oauthErrorInvalidGrant || strings.Contains(string(retrieveErr.Body), oauthErrorInvalidGrant) {
			if clearErr := refresher.tokens.Clear(ctx, userID); clearErr != nil {
				refresher.logger.Error("failed to clear tokens after invalid_grant",
					zap.String("user_id", userID),
					zap.Error(clearErr),
				)
			}
			refresher.logger.Warn("refresh token no longer honored",
				zap.String("user_id", userID),
				zap.String("provider_error", retrieveErr.ErrorCode),
			)
			return TokenPair{}, fmt.Errorf("%w: %s", ErrReauthorizationRequired, retrieveErr.ErrorDescription)
		}
		return TokenPair{}, fmt.Errorf("%w: provider status %d: %s", ErrRefreshFailed, retrieveErr.Response.StatusCode, retrieveErr.ErrorCode)
	}
	return TokenPair{}, fmt.Errorf("%w: %v", ErrRefreshFailed, exchangeErr)
}
