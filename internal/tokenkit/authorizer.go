package tokenkit

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Authorizer drives the provider connect flow: it builds the authorization
// redirect, validates the callback, and exchanges the staged one-time code
// for a token pair.
type Authorizer struct {
	config     ProviderConfig
	states     StateStore
	codes      CodeStore
	tokens     TokenStore
	clock      Clock
	logger     *zap.Logger
	httpClient *http.Client
}

// NewAuthorizer wires the connect flow dependencies. A nil httpClient falls
// back to http.DefaultClient; a nil logger becomes a no-op logger.
func NewAuthorizer(config ProviderConfig, states StateStore, codes CodeStore, tokens TokenStore, clock Clock, logger *zap.Logger, httpClient *http.Client) *Authorizer {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Authorizer{
		config:     config,
		states:     states,
		codes:      codes,
		tokens:     tokens,
		clock:      clock,
		logger:     logger,
		httpClient: httpClient,
	}
}

// BeginAuthorization issues a fresh state bound to the user and returns the
// provider authorization URL the caller must redirect to. No network call is
// made here.
func (authorizer *Authorizer) BeginAuthorization(ctx context.Context, userID string) (string, string, error) {
	if validateErr := authorizer.config.Validate(); validateErr != nil {
		return "", "", validateErr
	}
	state, issueErr := authorizer.states.Issue(ctx, userID)
	if issueErr != nil {
		return "", "", fmt.Errorf("authorizer.issue_state: %w", issueErr)
	}
	options := []oauth2.AuthCodeOption{}
	if authorizer.config.Language != "" {
		options = append(options, oauth2.SetAuthURLParam("language", authorizer.config.Language))
	}
	authorizationURL := authorizer.config.OAuth2Config().AuthCodeURL(state, options...)
	return authorizationURL, state, nil
}

// HandleCallback consumes the provider redirect. The state is invalidated on
// every path through here; on success the one-time code is staged for the
// deferred exchange and the bound user identifier is returned.
func (authorizer *Authorizer) HandleCallback(ctx context.Context, code string, state string, providerError string, providerErrorDescription string) (string, error) {
	if providerError != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrProviderDenied, providerError, providerErrorDescription)
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return "", ErrMissingParams
	}
	userID, consumeErr := authorizer.states.Consume(ctx, state)
	if consumeErr != nil {
		return "", consumeErr
	}
	if stageErr := authorizer.codes.Stage(ctx, userID, code); stageErr != nil {
		return "", fmt.Errorf("authorizer.stage_code: %w", stageErr)
	}
	return userID, nil
}

// ExchangeCode redeems the staged authorization code for a token pair and
// commits it to the token store. The code is removed from its slot before the
// exchange is attempted, so a failed exchange cannot be replayed either.
func (authorizer *Authorizer) ExchangeCode(ctx context.Context, userID string) (TokenPair, error) {
	if validateErr := authorizer.config.Validate(); validateErr != nil {
		return TokenPair{}, validateErr
	}
	code, takeErr := authorizer.codes.Take(ctx, userID)
	if takeErr != nil {
		return TokenPair{}, takeErr
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, authorizer.httpClient)
	token, exchangeErr := authorizer.config.OAuth2Config().Exchange(exchangeCtx, code)
	if exchangeErr != nil {
		return TokenPair{}, fmt.Errorf("authorizer.exchange: %w", exchangeErr)
	}

	now := authorizer.clock.Now()
	pair := TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.UTC(),
		UpdatedAt:    now,
		Connected:    true,
	}
	if token.Expiry.IsZero() {
		pair.ExpiresAt = now.Add(fallbackAccessTokenLifetime)
	}
	if putErr := authorizer.tokens.Put(ctx, userID, pair); putErr != nil {
		return TokenPair{}, fmt.Errorf("authorizer.commit: %w", putErr)
	}
	authorizer.logger.Info("provider account connected",
		zap.String("user_id", userID),
		zap.Time("expires_at", pair.ExpiresAt),
	)
	return pair, nil
}
