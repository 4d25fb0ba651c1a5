package tokenkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newConnectTestRouter(t *testing.T, tokenURL string, routeConfig ConnectRouteConfig, tokens TokenStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config := validTestConfig()
	config.TokenURL = tokenURL
	states := NewMemoryStateStore(time.Minute)
	codes := NewMemoryCodeStore(time.Minute)
	authorizer := NewAuthorizer(config, states, codes, tokens, nil, nil, nil)
	refresher := NewRefresher(config, tokens, nil, nil, nil)

	resolveUser := func(contextGin *gin.Context) (string, bool) {
		userID := contextGin.GetHeader("X-Test-User")
		return userID, userID != ""
	}

	router := gin.New()
	MountConnectRoutes(router, routeConfig, authorizer, refresher, tokens, resolveUser, nil)
	return router
}

func performRequest(router *gin.Engine, method string, target string, headers map[string]string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, nil)
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestConnectRoutesRequireSession(t *testing.T) {
	t.Parallel()

	router := newConnectTestRouter(t, "", ConnectRouteConfig{}, NewMemoryTokenStore())
	for _, route := range []struct {
		method string
		target string
	}{
		{http.MethodGet, "/auth/provider/connect"},
		{http.MethodPost, "/auth/provider/exchange"},
		{http.MethodGet, "/auth/provider/tokens"},
		{http.MethodPost, "/auth/provider/refresh"},
		{http.MethodDelete, "/auth/provider/disconnect"},
	} {
		recorder := performRequest(router, route.method, route.target, nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.target, recorder.Code)
		}
	}
}

func TestConnectLifecycleEndToEnd(t *testing.T) {
	t.Parallel()

	provider := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"access_token":"lifecycle-access","refresh_token":"lifecycle-refresh","token_type":"bearer","expires_in":3600}`))
	}))
	defer provider.Close()

	tokens := NewMemoryTokenStore()
	router := newConnectTestRouter(t, provider.URL, ConnectRouteConfig{}, tokens)
	sessionHeaders := map[string]string{"X-Test-User": "user-1"}

	connectRecorder := performRequest(router, http.MethodGet, "/auth/provider/connect", sessionHeaders)
	if connectRecorder.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", connectRecorder.Code, connectRecorder.Body.String())
	}
	var connectBody struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	if decodeErr := json.Unmarshal(connectRecorder.Body.Bytes(), &connectBody); decodeErr != nil {
		t.Fatalf("connect: unexpected decode error: %v", decodeErr)
	}
	parsedAuthorization, parseErr := url.Parse(connectBody.AuthorizationURL)
	if parseErr != nil {
		t.Fatalf("connect: unexpected parse error: %v", parseErr)
	}
	state := parsedAuthorization.Query().Get("state")
	if state == "" {
		t.Fatal("connect: expected a state parameter in the authorization URL")
	}

	callbackTarget := "/auth/provider/callback?code=provider-code&state=" + url.QueryEscape(state)
	callbackRecorder := performRequest(router, http.MethodGet, callbackTarget, nil)
	if callbackRecorder.Code != http.StatusOK {
		t.Fatalf("callback: expected 200, got %d: %s", callbackRecorder.Code, callbackRecorder.Body.String())
	}

	exchangeRecorder := performRequest(router, http.MethodPost, "/auth/provider/exchange", sessionHeaders)
	if exchangeRecorder.Code != http.StatusOK {
		t.Fatalf("exchange: expected 200, got %d: %s", exchangeRecorder.Code, exchangeRecorder.Body.String())
	}
	var exchangedPair TokenPair
	if decodeErr := json.Unmarshal(exchangeRecorder.Body.Bytes(), &exchangedPair); decodeErr != nil {
		t.Fatalf("exchange: unexpected decode error: %v", decodeErr)
	}
	if exchangedPair.AccessToken != "lifecycle-access" || !exchangedPair.Connected {
		t.Fatalf("exchange: unexpected pair %+v", exchangedPair)
	}

	tokensRecorder := performRequest(router, http.MethodGet, "/auth/provider/tokens", sessionHeaders)
	if tokensRecorder.Code != http.StatusOK {
		t.Fatalf("tokens: expected 200, got %d: %s", tokensRecorder.Code, tokensRecorder.Body.String())
	}

	refreshRecorder := performRequest(router, http.MethodPost, "/auth/provider/refresh", sessionHeaders)
	if refreshRecorder.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", refreshRecorder.Code, refreshRecorder.Body.String())
	}

	firstDisconnect := performRequest(router, http.MethodDelete, "/auth/provider/disconnect", sessionHeaders)
	if firstDisconnect.Code != http.StatusNoContent {
		t.Fatalf("disconnect: expected 204, got %d", firstDisconnect.Code)
	}
	secondDisconnect := performRequest(router, http.MethodDelete, "/auth/provider/disconnect", sessionHeaders)
	if secondDisconnect.Code != http.StatusNoContent {
		t.Fatalf("repeat disconnect: expected 204, got %d", secondDisconnect.Code)
	}

	postDisconnect := performRequest(router, http.MethodGet, "/auth/provider/tokens", sessionHeaders)
	if postDisconnect.Code != http.StatusOK {
		t.Fatalf("tokens after disconnect: expected 200, got %d", postDisconnect.Code)
	}
	var clearedPair TokenPair
	if decodeErr := json.Unmarshal(postDisconnect.Body.Bytes(), &clearedPair); decodeErr != nil {
		t.Fatalf("tokens after disconnect: unexpected decode error: %v", decodeErr)
	}
	if clearedPair.Connected || clearedPair.AccessToken != "" {
		t.Fatalf("tokens after disconnect: expected cleared pair, got %+v", clearedPair)
	}
}

func TestCallbackRedirectsOnConfiguredTargets(t *testing.T) {
	t.Parallel()

	routeConfig := ConnectRouteConfig{
		SuccessRedirect: "https://app.example.com/connected",
		FailureRedirect: "https://app.example.com/connect-failed",
	}
	tokens := NewMemoryTokenStore()
	router := newConnectTestRouter(t, "", routeConfig, tokens)
	sessionHeaders := map[string]string{"X-Test-User": "user-1"}

	connectRecorder := performRequest(router, http.MethodGet, "/auth/provider/connect", sessionHeaders)
	if connectRecorder.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", connectRecorder.Code)
	}
	var connectBody struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	if decodeErr := json.Unmarshal(connectRecorder.Body.Bytes(), &connectBody); decodeErr != nil {
		t.Fatalf("connect: unexpected decode error: %v", decodeErr)
	}
	parsedAuthorization, _ := url.Parse(connectBody.AuthorizationURL)
	state := parsedAuthorization.Query().Get("state")

	successRecorder := performRequest(router, http.MethodGet, "/auth/provider/callback?code=abc&state="+url.QueryEscape(state), nil)
	if successRecorder.Code != http.StatusFound {
		t.Fatalf("success callback: expected 302, got %d", successRecorder.Code)
	}
	if location := successRecorder.Header().Get("Location"); location != routeConfig.SuccessRedirect {
		t.Fatalf("success callback: unexpected location %s", location)
	}

	failureRecorder := performRequest(router, http.MethodGet, "/auth/provider/callback?error=access_denied", nil)
	if failureRecorder.Code != http.StatusFound {
		t.Fatalf("failure callback: expected 302, got %d", failureRecorder.Code)
	}
	failureLocation := failureRecorder.Header().Get("Location")
	if !strings.HasPrefix(failureLocation, routeConfig.FailureRedirect) {
		t.Fatalf("failure callback: unexpected location %s", failureLocation)
	}
	parsedFailure, parseErr := url.Parse(failureLocation)
	if parseErr != nil {
		t.Fatalf("failure callback: unexpected parse error: %v", parseErr)
	}
	if parsedFailure.Query().Get("reason") != "provider_denied" {
		t.Fatalf("failure callback: unexpected reason %s", parsedFailure.Query().Get("reason"))
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	t.Parallel()

	router := newConnectTestRouter(t, "", ConnectRouteConfig{}, NewMemoryTokenStore())
	recorder := performRequest(router, http.MethodGet, "/auth/provider/callback?code=abc&state=never-issued", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "invalid_state") {
		t.Fatalf("expected invalid_state reason, got %s", recorder.Body.String())
	}
}

func TestExchangeWithoutPendingCode(t *testing.T) {
	t.Parallel()

	router := newConnectTestRouter(t, "", ConnectRouteConfig{}, NewMemoryTokenStore())
	recorder := performRequest(router, http.MethodPost, "/auth/provider/exchange", map[string]string{"X-Test-User": "user-1"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "no_pending_code") {
		t.Fatalf("expected no_pending_code, got %s", recorder.Body.String())
	}
}

func TestRefreshRouteWithoutConnection(t *testing.T) {
	t.Parallel()

	router := newConnectTestRouter(t, "", ConnectRouteConfig{}, NewMemoryTokenStore())
	recorder := performRequest(router, http.MethodPost, "/auth/provider/refresh", map[string]string{"X-Test-User": "user-1"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "not_connected") {
		t.Fatalf("expected not_connected, got %s", recorder.Body.String())
	}
}
