package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alefe53/mis-esencias-live/internal/token"
	"github.com/alefe53/mis-esencias-live/pkg/response"
)

const (
	IdentityKey   = "identity"
	AdminKey      = "admin"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthMiddleware validates access tokens issued by the token manager.
type AuthMiddleware struct {
	tokens *token.Manager
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *token.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth returns a Gin middleware that validates bearer access tokens
// and stores the caller identity in the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := m.tokens.Validate(strings.TrimPrefix(authHeader, BearerPrefix), token.TypeAccess)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(IdentityKey, claims.Identity)
		c.Set(AdminKey, claims.Admin)

		c.Next()
	}
}

// RequireAdmin returns a Gin middleware that rejects non-admin callers.
// Must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			response.Forbidden(c, "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetIdentity extracts the caller identity from Gin context.
func GetIdentity(c *gin.Context) string {
	if identity, exists := c.Get(IdentityKey); exists {
		return identity.(string)
	}
	return ""
}

// IsAdmin reports whether the caller holds admin privileges.
func IsAdmin(c *gin.Context) bool {
	if admin, exists := c.Get(AdminKey); exists {
		return admin.(bool)
	}
	return false
}
