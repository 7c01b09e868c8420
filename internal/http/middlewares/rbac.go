package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole gates a route on the role claim placed by RequireAuth.
// It must run after RequireAuth; a missing role means the auth
// middleware was skipped, which reads as unauthenticated rather than
// forbidden.
func (m *AuthMiddleware) RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok || role == "" {
			abortError(c, http.StatusUnauthorized, "AuthError", "Missing identity context")
			return
		}
		if role != required {
			abortError(c, http.StatusForbidden, "AuthError", "Admin access required")
			return
		}
		c.Next()
	}
}
