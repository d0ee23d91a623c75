package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"paygate-backend/internal/shared/utils"
)

type contextKey string

const clientIPKey contextKey = "client_ip"

// ClientIPMiddleware extracts the client IP address and injects it into
// both the gin context and the request context, so services and audit
// hooks can pick it up without knowing about HTTP.
//
// Register early in the chain.
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := utils.ExtractClientIP(c)

		c.Set("client_ip", clientIP)

		ctx := context.WithValue(c.Request.Context(), clientIPKey, clientIP)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetClientIPFromContext retrieves the client IP from context.
// Returns empty string if not found.
func GetClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}
