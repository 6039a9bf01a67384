package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

// Limiter decides whether a subject may make another call in scope.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (bool, time.Duration)
}

// RateLimit throttles per authenticated user, falling back to the client IP.
func RateLimit(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		subject := c.ClientIP()
		if actor, ok := ActorFromContext(c); ok && actor.UserID != "" {
			subject = actor.UserID
		}
		allowed, retryAfter := limiter.Allow(c.Request.Context(), scope, subject)
		if !allowed {
			response.RateLimited(c, retryAfter)
			c.Abort()
			return
		}
		c.Next()
	}
}
