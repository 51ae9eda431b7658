package middleware

import (
	"net/http"
	"strings"

	"github.com/CyberwizD/account-events/services/account/internal/services"
	"github.com/gin-gonic/gin"
)

const (
	// SessionCookie holds the signed session JWT.
	SessionCookie = "session"
	// ContextUserID is the gin context key for the signed-in user id.
	ContextUserID = "user_id"
	// ContextUserEmail is the gin context key for the signed-in user email.
	ContextUserEmail = "user_email"
)

// SessionParser verifies session tokens.
type SessionParser interface {
	Parse(token string) (*services.SessionClaims, error)
}

// CurrentUserMiddleware records the signed-in user on the context when the
// request carries a valid session cookie or bearer token. It never rejects.
func CurrentUserMiddleware(sessions SessionParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.Next()
			return
		}
		claims, err := sessions.Parse(token)
		if err == nil {
			c.Set(ContextUserID, claims.UserID())
			c.Set(ContextUserEmail, claims.Email)
		}
		c.Next()
	}
}

// AuthMiddleware rejects requests without a signed-in user. It must run after
// CurrentUserMiddleware.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextUserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
