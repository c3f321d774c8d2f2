package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimit throttles by client IP. A nil limiter disables the check.
func RateLimit(l Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.Allow(c.Request.Context(), scope+":"+c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many requests, try again later"})
	}
}
