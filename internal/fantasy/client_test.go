package fantasy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rosterlab/leaguelink/internal/tokenkit"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// newTokenEndpoint serves a provider token endpoint that always rotates the
// pair and counts how many refresh exchanges it handled.
func newTokenEndpoint(t *testing.T, refreshCount *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		refreshCount.Add(1)
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"access_token":"refreshed-access","refresh_token":"refreshed-refresh","token_type":"bearer","expires_in":3600}`))
	}))
}

func newTestClient(t *testing.T, apiURL string, tokenURL string, tokens tokenkit.TokenStore) *Client {
	t.Helper()
	config := tokenkit.ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
		TokenURL:     tokenURL,
	}
	clock := fixedClock{timestamp: testNow}
	refresher := tokenkit.NewRefresher(config, tokens, clock, nil, nil)
	return NewClient(apiURL, tokens, refresher, clock, nil, nil)
}

func seedPair(t *testing.T, tokens tokenkit.TokenStore, userID string, expiresAt time.Time) {
	t.Helper()
	putErr := tokens.Put(context.Background(), userID, tokenkit.TokenPair{
		AccessToken:  "seeded-access",
		RefreshToken: "seeded-refresh",
		ExpiresAt:    expiresAt,
		UpdatedAt:    testNow,
		Connected:    true,
	})
	if putErr != nil {
		t.Fatalf("unexpected error: %v", putErr)
	}
}

func TestGetJSONSendsBearerAndFormat(t *testing.T) {
	t.Parallel()

	api := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer seeded-access" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := request.URL.Query().Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"value":"hello"}`))
	}))
	defer api.Close()

	tokens := tokenkit.NewMemoryTokenStore()
	seedPair(t, tokens, "user-1", testNow.Add(time.Hour))
	client := newTestClient(t, api.URL, "https://provider.invalid/token", tokens)

	var payload struct {
		Value string `json:"value"`
	}
	if fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/metadata", &payload); fetchErr != nil {
		t.Fatalf("unexpected error: %v", fetchErr)
	}
	if payload.Value != "hello" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestGetJSONWithoutConnection(t *testing.T) {
	t.Parallel()

	tokens := tokenkit.NewMemoryTokenStore()
	client := newTestClient(t, "https://api.invalid", "https://provider.invalid/token", tokens)

	var payload struct{}
	if fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/metadata", &payload); !errors.Is(fetchErr, tokenkit.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", fetchErr)
	}
}

func TestGetJSONRefreshesExpiredPairBeforeRequest(t *testing.T) {
	t.Parallel()

	var refreshCount atomic.Int64
	provider := newTokenEndpoint(t, &refreshCount)
	defer provider.Close()

	api := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer refreshed-access" {
			t.Errorf("expected refreshed token, got %q", got)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{}`))
	}))
	defer api.Close()

	tokens := tokenkit.NewMemoryTokenStore()
	seedPair(t, tokens, "user-1", testNow.Add(-time.Minute))
	client := newTestClient(t, api.URL, provider.URL, tokens)

	var payload struct{}
	if fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/metadata", &payload); fetchErr != nil {
		t.Fatalf("unexpected error: %v", fetchErr)
	}
	if count := refreshCount.Load(); count != 1 {
		t.Fatalf("expected one refresh exchange, got %d", count)
	}
}

func TestGetJSONRetriesOnceAfterUnauthorized(t *testing.T) {
	t.Parallel()

	var refreshCount atomic.Int64
	provider := newTokenEndpoint(t, &refreshCount)
	defer provider.Close()

	var apiCalls atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if apiCalls.Add(1) == 1 {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := request.Header.Get("Authorization"); got != "Bearer refreshed-access" {
			t.Errorf("expected refreshed token on retry, got %q", got)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{}`))
	}))
	defer api.Close()

	tokens := tokenkit.NewMemoryTokenStore()
	seedPair(t, tokens, "user-1", testNow.Add(time.Hour))
	client := newTestClient(t, api.URL, provider.URL, tokens)

	var payload struct{}
	if fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/metadata", &payload); fetchErr != nil {
		t.Fatalf("unexpected error: %v", fetchErr)
	}
	if count := apiCalls.Load(); count != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", count)
	}
	if count := refreshCount.Load(); count != 1 {
		t.Fatalf("expected one refresh exchange, got %d", count)
	}
}

func TestGetJSONGivesUpAfterSecondUnauthorized(t *testing.T) {
	t.Parallel()

	var refreshCount atomic.Int64
	provider := newTokenEndpoint(t, &refreshCount)
	defer provider.Close()

	var apiCalls atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		apiCalls.Add(1)
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	tokens := tokenkit.NewMemoryTokenStore()
	seedPair(t, tokens, "user-1", testNow.Add(time.Hour))
	client := newTestClient(t, api.URL, provider.URL, tokens)

	var payload struct{}
	fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/metadata", &payload)
	if !errors.Is(fetchErr, tokenkit.ErrReauthorizationRequired) {
		t.Fatalf("expected ErrReauthorizationRequired, got %v", fetchErr)
	}
	if count := apiCalls.Load(); count != 2 {
		t.Fatalf("expected two calls, got %d", count)
	}
}

func TestGetJSONClassifiesProviderStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   int
		expected error
	}{
		{name: "forbidden", status: http.StatusForbidden, expected: ErrPermissionDenied},
		{name: "rate_limited", status: http.StatusTooManyRequests, expected: ErrRateLimited},
		{name: "server_error", status: http.StatusInternalServerError, expected: ErrUpstream},
	}
	for _, testCase := range cases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			api := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(testCase.status)
			}))
			defer api.Close()

			tokens := tokenkit.NewMemoryTokenStore()
			seedPair(t, tokens, "user-1", testNow.Add(time.Hour))
			client := newTestClient(t, api.URL, "https://provider.invalid/token", tokens)

			var payload struct{}
			fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/metadata", &payload)
			if !errors.Is(fetchErr, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, fetchErr)
			}
		})
	}
}

func TestGetJSONAppendsFormatToExistingQuery(t *testing.T) {
	t.Parallel()

	api := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		query := request.URL.Query()
		if query.Get("format") != "json" || query.Get("count") != "5" {
			t.Errorf("unexpected query %s", request.URL.RawQuery)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{}`))
	}))
	defer api.Close()

	tokens := tokenkit.NewMemoryTokenStore()
	seedPair(t, tokens, "user-1", testNow.Add(time.Hour))
	client := newTestClient(t, api.URL, "https://provider.invalid/token", tokens)

	var payload struct{}
	if fetchErr := client.GetJSON(context.Background(), "user-1", "/league/nfl.l.1/teams?count=5", &payload); fetchErr != nil {
		t.Fatalf("unexpected error: %v", fetchErr)
	}
}
