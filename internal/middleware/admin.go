package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/livepoll/backend/pkg/response"
)

// AdminKeyHeader carries the shared administrator key.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey allows only requests presenting key. An empty key disables the route.
func RequireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			response.Forbidden(c, "administration is disabled")
			c.Abort()
			return
		}
		got := c.GetHeader(AdminKeyHeader)
		if got == "" {
			response.Unauthorized(c, "missing admin key")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			response.Forbidden(c, "invalid admin key")
			c.Abort()
			return
		}
		c.Next()
	}
}
