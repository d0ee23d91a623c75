package middleware

import (
	"github.com/gin-gonic/gin"

	"paygate-backend/internal/shared/response"
)

// RequireRole restricts a route group to the given roles. The role is
// set on the context by AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		roleValue, exists := c.Get("role")
		role, ok := roleValue.(string)
		if !exists || !ok || !allowed[role] {
			response.Forbidden(c, "access denied: insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminMiddleware checks if the operator has the admin role.
func AdminMiddleware() gin.HandlerFunc {
	return RequireRole("admin")
}
