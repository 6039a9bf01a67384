package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/audit"
)

// AuditContext attaches the caller's address and user agent to the request
// context so audit entries written downstream carry them.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithRequestMeta(c.Request.Context(), audit.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
