package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rosterlab/leaguelink/pkg/sessionvalidator"
)

const (
	// SessionCookieName carries the signed application session token.
	SessionCookieName = "app_session"

	sessionClaimsKey = "session_claims"
)

var errEmptySubject = errors.New("session.mint: subject must be non-empty")

// SessionConfig configures session minting and validation.
type SessionConfig struct {
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
}

// SessionClaims identify the application user operating their provider link.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// MintSessionJWT creates a signed HS256 session token for a user.
func MintSessionJWT(config SessionConfig, userID string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errEmptySubject
	}
	expiresAt := now.Add(config.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(config.SigningKey)
	return signed, expiresAt, signErr
}

// RequireSession validates the session cookie and injects the user identity.
func RequireSession(config SessionConfig) gin.HandlerFunc {
	resolve := ResolveUser(config)
	return func(contextGin *gin.Context) {
		userID, ok := resolve(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(sessionClaimsKey, &SessionClaims{UserID: userID})
		contextGin.Next()
	}
}

// ResolveUser parses the session cookie without aborting the request. It is
// handed to route groups that decide per-handler whether a session is needed.
// Validation is delegated to pkg/sessionvalidator so external consumers and
// this service apply identical checks.
func ResolveUser(config SessionConfig) func(contextGin *gin.Context) (string, bool) {
	validator, validatorErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: config.SigningKey,
		Issuer:     config.Issuer,
		CookieName: SessionCookieName,
	})
	return func(contextGin *gin.Context) (string, bool) {
		if validatorErr != nil {
			return "", false
		}
		claims, validateErr := validator.ValidateRequest(contextGin.Request)
		if validateErr != nil {
			return "", false
		}
		return claims.GetUserID(), true
	}
}

// SessionUser resolves the authenticated user id injected by RequireSession.
func SessionUser(contextGin *gin.Context) (string, bool) {
	claimsValue, found := contextGin.Get(sessionClaimsKey)
	if !found {
		return "", false
	}
	claims, ok := claimsValue.(*SessionClaims)
	if !ok || claims == nil || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

// WriteSessionCookie sets the session cookie on the response.
func WriteSessionCookie(contextGin *gin.Context, sessionToken string, expiresAt time.Time, cookieDomain string, sameSite http.SameSite) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		Domain:   cookieDomain,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: sameSite,
	})
}
