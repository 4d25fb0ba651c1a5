package tokenkit

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDResolver extracts the authenticated application user from a request.
// The second return is false when no valid session is present.
type UserIDResolver func(contextGin *gin.Context) (string, bool)

// ConnectRouteConfig controls where the provider callback sends the browser.
// Empty targets fall back to JSON responses, which is what tests and API-only
// deployments use.
type ConnectRouteConfig struct {
	SuccessRedirect string
	FailureRedirect string
}

// MountConnectRoutes registers the provider connect lifecycle under
// /auth/provider: connect, callback, exchange, tokens, refresh, disconnect.
func MountConnectRoutes(router gin.IRouter, routeConfig ConnectRouteConfig, authorizer *Authorizer, refresher *Refresher, tokens TokenStore, resolveUser UserIDResolver, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("/auth/provider/connect", func(contextGin *gin.Context) {
		userID, ok := resolveUser(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		authorizationURL, _, beginErr := authorizer.BeginAuthorization(contextGin.Request.Context(), userID)
		if beginErr != nil {
			logger.Error("begin authorization failed", zap.String("user_id", userID), zap.Error(beginErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "configuration_error", "details": beginErr.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"authorization_url": authorizationURL})
	})

	router.GET("/auth/provider/callback", func(contextGin *gin.Context) {
		code := contextGin.Query("code")
		state := contextGin.Query("state")
		providerError := contextGin.Query("error")
		providerErrorDescription := contextGin.Query("error_description")

		userID, callbackErr := authorizer.HandleCallback(contextGin.Request.Context(), code, state, providerError, providerErrorDescription)
		if callbackErr != nil {
			reason := callbackReason(callbackErr)
			logger.Warn("provider callback rejected", zap.String("reason", reason), zap.Error(callbackErr))
			failCallback(contextGin, routeConfig, reason, callbackErr.Error())
			return
		}
		logger.Info("provider callback accepted", zap.String("user_id", userID))
		if routeConfig.SuccessRedirect != "" {
			contextGin.Redirect(http.StatusFound, routeConfig.SuccessRedirect)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"status": "code_received"})
	})

	router.POST("/auth/provider/exchange", func(contextGin *gin.Context) {
		userID, ok := resolveUser(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		pair, exchangeErr := authorizer.ExchangeCode(contextGin.Request.Context(), userID)
		if exchangeErr != nil {
			status, code := exchangeStatus(exchangeErr)
			logger.Error("code exchange failed", zap.String("user_id", userID), zap.Error(exchangeErr))
			contextGin.AbortWithStatusJSON(status, gin.H{"error": code, "details": exchangeErr.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, pair)
	})

	router.GET("/auth/provider/tokens", func(contextGin *gin.Context) {
		userID, ok := resolveUser(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		pair, getErr := tokens.Get(contextGin.Request.Context(), userID)
		if getErr != nil {
			if errors.Is(getErr, ErrTokenNotFound) {
				contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_connected"})
				return
			}
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store_error", "details": getErr.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, pair)
	})

	router.POST("/auth/provider/refresh", func(contextGin *gin.Context) {
		userID, ok := resolveUser(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		pair, refreshErr := refresher.Refresh(contextGin.Request.Context(), userID)
		if refreshErr != nil {
			status, code := refreshStatus(refreshErr)
			logger.Warn("token refresh failed", zap.String("user_id", userID), zap.Error(refreshErr))
			contextGin.AbortWithStatusJSON(status, gin.H{"error": code, "details": refreshErr.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, pair)
	})

	router.DELETE("/auth/provider/disconnect", func(contextGin *gin.Context) {
		userID, ok := resolveUser(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_required"})
			return
		}
		if clearErr := tokens.Clear(contextGin.Request.Context(), userID); clearErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store_error", "details": clearErr.Error()})
			return
		}
		contextGin.Status(http.StatusNoContent)
	})
}

func callbackReason(callbackErr error) string {
	switch {
	case errors.Is(callbackErr, ErrProviderDenied):
		return "provider_denied"
	case errors.Is(callbackErr, ErrMissingParams):
		return "missing_params"
	case errors.Is(callbackErr, ErrStateNotFound), errors.Is(callbackErr, ErrStateExpired):
		return "invalid_state"
	default:
		return "callback_failed"
	}
}

func failCallback(contextGin *gin.Context, routeConfig ConnectRouteConfig, reason string, description string) {
	if routeConfig.FailureRedirect != "" {
		target, parseErr := url.Parse(routeConfig.FailureRedirect)
		if parseErr == nil {
			query := target.Query()
			query.Set("reason", reason)
			query.Set("description", description)
			target.RawQuery = query.Encode()
			contextGin.Redirect(http.StatusFound, target.String())
			return
		}
	}
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": reason, "details": description})
}

func exchangeStatus(exchangeErr error) (int, string) {
	switch {
	case errors.Is(exchangeErr, ErrCodeNotFound), errors.Is(exchangeErr, ErrCodeExpired):
		return http.StatusNotFound, "no_pending_code"
	case errors.Is(exchangeErr, ErrMissingClientID),
		errors.Is(exchangeErr, ErrMissingClientSecret),
		errors.Is(exchangeErr, ErrMissingRedirectURI),
		errors.Is(exchangeErr, ErrInsecureRedirectURI):
		return http.StatusInternalServerError, "configuration_error"
	default:
		return http.StatusBadGateway, "exchange_failed"
	}
}

func refreshStatus(refreshErr error) (int, string) {
	switch {
	case errors.Is(refreshErr, ErrNoToken):
		return http.StatusUnauthorized, "not_connected"
	case errors.Is(refreshErr, ErrReauthorizationRequired):
		return http.StatusUnauthorized, "reauthorization_required"
	case errors.Is(refreshErr, ErrRefreshFailed):
		return http.StatusBadGateway, "refresh_failed"
	default:
		return http.StatusInternalServerError, "refresh_error"
	}
}
