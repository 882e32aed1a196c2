package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/orchestrator/internal/pkg/jwt"
	"github.com/quizforge/orchestrator/internal/pkg/response"
)

const (
	SessionIDKey = "sessionID"
)

// Auth validates the session token issued by the session endpoint.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "missing session token")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "session token invalid or expired")
			c.Abort()
			return
		}

		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}

// GetSessionID reads the session id stored by Auth.
func GetSessionID(c *gin.Context) (string, bool) {
	sessionID, exists := c.Get(SessionIDKey)
	if !exists {
		return "", false
	}
	id, ok := sessionID.(string)
	return id, ok && id != ""
}
