package fantasy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rosterlab/leaguelink/internal/tokenkit"
)

// DefaultBaseURL is the provider's fantasy data API root.
const DefaultBaseURL = "https://fantasysports.yahooapis.com/fantasy/v2"

const maxResponseBytes = 4 << 20

// Client issues authenticated requests against the provider data API. It
// loads the current token pair per call, refreshes proactively when the pair
// is at or past expiry, and performs exactly one reactive refresh-and-retry
// when the provider rejects a token it should have accepted.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     tokenkit.TokenStore
	refresher  *tokenkit.Refresher
	clock      tokenkit.Clock
	logger     *zap.Logger
}

// NewClient wires the data API client. A nil httpClient falls back to
// http.DefaultClient; a nil logger becomes a no-op logger.
func NewClient(baseURL string, tokens tokenkit.TokenStore, refresher *tokenkit.Refresher, clock tokenkit.Clock, logger *zap.Logger, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if clock == nil {
		clock = tokenkit.NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		refresher:  refresher,
		clock:      clock,
		logger:     logger,
	}
}

// GetJSON fetches the resource path for the user and decodes the JSON payload
// into out.
func (client *Client) GetJSON(ctx context.Context, userID string, path string, out interface{}) error {
	pair, loadErr := client.loadFreshPair(ctx, userID)
	if loadErr != nil {
		return loadErr
	}

	status, body, requestErr := client.doRequest(ctx, pair.AccessToken, path)
	if requestErr != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, requestErr)
	}
	if status == http.StatusUnauthorized {
		// Clock skew or a token revoked out of band: one reactive refresh,
		// one retry, then give up.
		refreshed, refreshErr := client.refresher.Refresh(ctx, userID)
		if refreshErr != nil {
			return refreshErr
		}
		status, body, requestErr = client.doRequest(ctx, refreshed.AccessToken, path)
		if requestErr != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, requestErr)
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: provider rejected a freshly refreshed token", tokenkit.ErrReauthorizationRequired)
		}
	}
	if classifyErr := classifyStatus(status, body); classifyErr != nil {
		return classifyErr
	}
	if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
		return fmt.Errorf("%w: malformed payload: %v", ErrUpstream, decodeErr)
	}
	return nil
}

func (client *Client) loadFreshPair(ctx context.Context, userID string) (tokenkit.TokenPair, error) {
	pair, getErr := client.tokens.Get(ctx, userID)
	if getErr != nil {
		if errors.Is(getErr, tokenkit.ErrTokenNotFound) {
			return tokenkit.TokenPair{}, tokenkit.ErrNoToken
		}
		return tokenkit.TokenPair{}, fmt.Errorf("fantasy.load_tokens: %w", getErr)
	}
	if !pair.Connected || pair.AccessToken == "" {
		return tokenkit.TokenPair{}, tokenkit.ErrNoToken
	}
	if pair.Expired(client.clock.Now()) {
		refreshed, refreshErr := client.refresher.Refresh(ctx, userID)
		if refreshErr != nil {
			return tokenkit.TokenPair{}, refreshErr
		}
		return refreshed, nil
	}
	return pair, nil
}

func (client *Client) doRequest(ctx context.Context, accessToken string, path string) (int, []byte, error) {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	request, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+path+separator+"format=json", nil)
	if buildErr != nil {
		return 0, nil, buildErr
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("Accept", "application/json")

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return 0, nil, doErr
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if readErr != nil {
		return 0, nil, readErr
	}
	return response.StatusCode, body, nil
}

// classifyStatus maps a non-2xx provider status onto the error taxonomy.
// 400 and 404 stay ambiguous here; the service layer resolves them.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return fmt.Errorf("%w: provider status %d: %s", errAmbiguousKey, status, truncateBody(body))
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: provider status %d: %s", ErrPermissionDenied, status, truncateBody(body))
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: provider status %d", ErrRateLimited, status)
	default:
		return fmt.Errorf("%w: provider status %d: %s", ErrUpstream, status, truncateBody(body))
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
