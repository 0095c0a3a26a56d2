// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the operator API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callcenter-backend/internal/auth"
)

const (
	// userIDKey holds the authenticated subject.
	userIDKey = "userID"
	// operatorNameKey holds the display name from the token, if any.
	operatorNameKey = "operatorName"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// RequireBearer rejects requests without a valid "Authorization: Bearer"
// token with 401. On success the subject is stored under "userID" and the
// optional name claim under "operatorName".
func RequireBearer(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("bearer token rejected")
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		c.Set(userIDKey, claims.Subject)
		if claims.Name != "" {
			c.Set(operatorNameKey, claims.Name)
		}
		c.Next()
	}
}

// UserID returns the authenticated subject, or "anonymous" when the route
// is not behind RequireBearer.
func UserID(c *gin.Context) string {
	if s := c.GetString(userIDKey); s != "" {
		return s
	}
	return "anonymous"
}

// OperatorName returns the name claim of the authenticated operator.
func OperatorName(c *gin.Context) string { return c.GetString(operatorNameKey) }
