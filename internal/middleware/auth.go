package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

const (
	ContextRole  = "role"
	ContextToken = "token"
)

// TokenVerifier checks a session token. *services.AuthService satisfies it.
type TokenVerifier interface {
	VerifyToken(token string) bool
}

// ExtractToken returns the bearer token from the Authorization header, or
// the session cookie when no header is sent.
func ExtractToken(c *gin.Context, cookieName string) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil {
			return token
		}
	}
	return ""
}

// AuthRequired rejects requests without a valid admin token. Every failure
// gets the same 401 so callers cannot tell a bad signature from an expired one.
func AuthRequired(verifier TokenVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c, cookieName)
		if token == "" || !verifier.VerifyToken(token) {
			response.Unauthorized(c, "unauthorized")
			c.Abort()
			return
		}

		c.Set(ContextRole, "admin")
		c.Set(ContextToken, token)
		c.Next()
	}
}

// GetRole gets the current role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}
