package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rosterlab/leaguelink/internal/fantasy"
	"github.com/rosterlab/leaguelink/internal/tokenkit"
)

// MountFantasyRoutes registers the normalized data endpoints. Every route
// requires a valid session; the provider tokens it operates on belong to the
// session user.
func MountFantasyRoutes(router gin.IRouter, service *fantasy.Service, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("/league/:leagueKey", func(contextGin *gin.Context) {
		userID, ok := SessionUser(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		league, fetchErr := service.FetchLeague(contextGin.Request.Context(), userID, contextGin.Param("leagueKey"))
		if fetchErr != nil {
			writeFantasyError(contextGin, logger, userID, fetchErr)
			return
		}
		contextGin.JSON(http.StatusOK, league)
	})

	router.GET("/league/:leagueKey/teams", func(contextGin *gin.Context) {
		userID, ok := SessionUser(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		teams, fetchErr := service.FetchLeagueTeams(contextGin.Request.Context(), userID, contextGin.Param("leagueKey"))
		if fetchErr != nil {
			writeFantasyError(contextGin, logger, userID, fetchErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"teams": teams})
	})

	router.GET("/team/:teamKey", func(contextGin *gin.Context) {
		userID, ok := SessionUser(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		team, fetchErr := service.FetchTeam(contextGin.Request.Context(), userID, contextGin.Param("teamKey"))
		if fetchErr != nil {
			writeFantasyError(contextGin, logger, userID, fetchErr)
			return
		}
		contextGin.JSON(http.StatusOK, team)
	})
}

// writeFantasyError maps the fantasy error taxonomy onto HTTP statuses with a
// structured {error, details} body.
func writeFantasyError(contextGin *gin.Context, logger *zap.Logger, userID string, fetchErr error) {
	status := http.StatusBadGateway
	code := "upstream_error"
	switch {
	case errors.Is(fetchErr, tokenkit.ErrNoToken):
		status, code = http.StatusUnauthorized, "not_connected"
	case errors.Is(fetchErr, tokenkit.ErrReauthorizationRequired):
		status, code = http.StatusUnauthorized, "reauthorization_required"
	case errors.Is(fetchErr, tokenkit.ErrRefreshFailed):
		status, code = http.StatusBadGateway, "refresh_failed"
	case errors.Is(fetchErr, fantasy.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(fetchErr, fantasy.ErrPermissionDenied):
		status, code = http.StatusForbidden, "permission_denied"
	case errors.Is(fetchErr, fantasy.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	}
	logger.Warn("fantasy fetch failed",
		zap.String("user_id", userID),
		zap.String("code", code),
		zap.Error(fetchErr),
	)
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code, "details": fetchErr.Error()})
}
