package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

type recomputeService interface {
	Enqueue(ctx context.Context, actor models.Actor) (*models.RecomputeBatch, error)
}

// RecomputeHandler triggers batch recomputation of stored estimates.
type RecomputeHandler struct {
	service recomputeService
}

// NewRecomputeHandler constructs the handler.
func NewRecomputeHandler(svc recomputeService) *RecomputeHandler {
	return &RecomputeHandler{service: svc}
}

// Enqueue godoc
// @Summary Recompute every stored estimate
// @Description Queues one job per submission; unchanged estimates are not rewritten
// @Tags Admin
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/recompute [post]
func (h *RecomputeHandler) Enqueue(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	batch, err := h.service.Enqueue(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, batch)
}
