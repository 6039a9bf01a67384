package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/dto"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

type auditService interface {
	Trail(ctx context.Context, entity, entityID string, actor models.Actor) ([]models.AuditLogEntry, error)
	Search(ctx context.Context, filter models.AuditFilter, actor models.Actor) ([]models.AuditLogEntry, int, error)
	Stats(ctx context.Context, days int, actor models.Actor) (*models.AuditStats, error)
	Verify(ctx context.Context, entity, entityID string, actor models.Actor) (*models.ChainVerification, error)
	ExportCSV(ctx context.Context, filter models.AuditFilter, actor models.Actor) ([]byte, error)
}

// AuditHandler exposes the audit log to administrators.
type AuditHandler struct {
	service auditService
	now     func() time.Time
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc auditService) *AuditHandler {
	return &AuditHandler{service: svc, now: time.Now}
}

// Search godoc
// @Summary Search audit entries
// @Tags Audit
// @Produce json
// @Param entity query string false "Entity"
// @Param entityId query string false "Entity ID"
// @Param actorId query string false "Actor ID"
// @Param action query string false "Action"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) Search(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	filter, ok := parseAuditFilter(c)
	if !ok {
		return
	}
	entries, total, err := h.service.Search(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AuditPage{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil)
}

// Stats godoc
// @Summary Audit activity summary
// @Tags Audit
// @Produce json
// @Param days query int false "Trailing window in days"
// @Success 200 {object} response.Envelope
// @Router /audit/stats [get]
func (h *AuditHandler) Stats(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be an integer"))
			return
		}
		days = parsed
	}
	stats, err := h.service.Stats(c.Request.Context(), days, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Trail godoc
// @Summary Audit trail of one entity
// @Tags Audit
// @Produce json
// @Param entity path string true "submission or user"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /audit/{entity}/{id} [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	entries, err := h.service.Trail(c.Request.Context(), c.Param("entity"), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Verify godoc
// @Summary Verify an entity's audit hash chain
// @Tags Audit
// @Produce json
// @Param entity path string true "submission or user"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /audit/{entity}/{id}/verify [get]
func (h *AuditHandler) Verify(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	result, err := h.service.Verify(c.Request.Context(), c.Param("entity"), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export audit entries as CSV
// @Tags Audit
// @Produce text/csv
// @Success 200 {file} file
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	filter, ok := parseAuditFilter(c)
	if !ok {
		return
	}
	data, err := h.service.ExportCSV(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102-150405"))
	response.Attachment(c, filename, "text/csv; charset=utf-8", data)
}

func parseAuditFilter(c *gin.Context) (models.AuditFilter, bool) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err))
		return models.AuditFilter{}, false
	}
	filter, err := query.Filter()
	if err != nil {
		response.Error(c, err)
		return models.AuditFilter{}, false
	}
	return filter, true
}
