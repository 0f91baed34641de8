// HTTP middleware
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// userIDKey is the context key the principal middleware sets.
const userIDKey = "user_id"

// RequireUser resolves the request principal from the X-User-ID
// header. Upstream auth terminates sessions and injects the header;
// requests without it are rejected.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
