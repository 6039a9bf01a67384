package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

// RequireCapability rejects callers whose role holds the action in no scope.
// Ownership checks stay in the services, which see the target record.
func RequireCapability(action rbac.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !actor.Active {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account is inactive"))
			c.Abort()
			return
		}
		if !rbac.CanAny(actor, action) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(actor.Role)+" may not "+string(action)))
			c.Abort()
			return
		}
		c.Next()
	}
}
