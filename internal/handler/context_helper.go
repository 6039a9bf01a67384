package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/middleware"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

// requireActor returns the authenticated actor or writes 401.
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
