package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/pkg/types"
)

// Context keys set by the middleware for downstream handlers.
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// TokenFromRequest extracts the access token: Authorization header first
// (raw or Bearer-prefixed, the web client sends it raw), then the token
// query parameter used by WebSocket upgrades.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Middleware authenticates a request and stores identity in the gin context.
func Middleware(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := manager.Parse(TokenFromRequest(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole restricts a route to one role. Runs after Middleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireTeacher restricts a route to teachers.
func RequireTeacher() gin.HandlerFunc { return RequireRole(types.RoleTeacher) }

// RequireStudent restricts a route to students.
func RequireStudent() gin.HandlerFunc { return RequireRole(types.RoleStudent) }
