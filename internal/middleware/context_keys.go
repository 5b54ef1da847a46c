package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
)

// contextKey is a private type for context keys to prevent collisions.
type contextKey string

const (
	loggerCtxKey = contextKey("logger")
	userIDKey    = contextKey("userID")
	teamIDKey    = contextKey("teamID")
)

// GetLoggerFromCtx retrieves the request-scoped logger from the standard
// context. It returns the default logger if none is found.
func GetLoggerFromCtx(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// GetUserIDFromContext retrieves the authenticated user ID from the Gin
// context. It returns the user ID and a boolean indicating if it was found.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	if v := c.Request.Context().Value(userIDKey); v != nil {
		if userID, ok := v.(string); ok {
			return userID, true
		}
	}
	return "", false
}

// GetTeamIDFromContext retrieves the authenticated team ID from the Gin
// context. Every data-touching handler scopes its queries by this value.
func GetTeamIDFromContext(c *gin.Context) (string, bool) {
	if v := c.Request.Context().Value(teamIDKey); v != nil {
		if teamID, ok := v.(string); ok {
			return teamID, true
		}
	}
	return "", false
}
