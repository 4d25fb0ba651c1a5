package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleDevLogin mints a session cookie for the supplied user id so the
// connect flow is drivable locally. Only mounted when the dev flag is set.
func HandleDevLogin(config SessionConfig, cookieDomain string, sameSite http.SameSite) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var inbound struct {
			UserID string `json:"user_id"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.UserID) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		sessionToken, expiresAt, mintErr := MintSessionJWT(config, inbound.UserID, time.Now().UTC())
		if mintErr != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		WriteSessionCookie(contextGin, sessionToken, expiresAt, cookieDomain, sameSite)
		contextGin.JSON(http.StatusOK, gin.H{"user_id": inbound.UserID, "expires": expiresAt})
	}
}
