package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/dto"
	"github.com/noah-isme/migration-estimator-api/internal/middleware"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

type submissionService interface {
	Create(ctx context.Context, info models.CustomerInfo, inputs models.TechnicalInputs, actor models.Actor) (*models.Submission, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.Submission, error)
	List(ctx context.Context, actor models.Actor, filter models.SubmissionFilter) ([]models.Submission, int, error)
	TransitionStatus(ctx context.Context, id string, next models.SubmissionStatus, actor models.Actor, expectedUpdatedAt time.Time) (*models.Submission, error)
	AppendComment(ctx context.Context, id, text string, actor models.Actor) (*models.Submission, error)
	Recompute(ctx context.Context, id string, actor models.Actor) (*models.Submission, bool, error)
}

type auditTrailService interface {
	Trail(ctx context.Context, entity, entityID string, actor models.Actor) ([]models.AuditLogEntry, error)
}

// SubmissionHandler exposes the submission workflow.
type SubmissionHandler struct {
	service submissionService
	audit   auditTrailService
}

// NewSubmissionHandler constructs a submission handler.
func NewSubmissionHandler(svc submissionService, audit auditTrailService) *SubmissionHandler {
	return &SubmissionHandler{service: svc, audit: audit}
}

// Create godoc
// @Summary Create submission
// @Description Stores customer details with a freshly computed estimate
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	inputs, err := req.Inputs()
	if err != nil {
		response.Error(c, err)
		return
	}
	submission, err := h.service.Create(c.Request.Context(), req.CustomerInfo, inputs, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions
// @Description End users only see their own submissions
// @Tags Submissions
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param ownerId query string false "Owner filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.SubmissionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err))
		return
	}
	filter, err := query.Filter()
	if err != nil {
		response.Error(c, err)
		return
	}
	items, total, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, total, filter.Limit, filter.Offset, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	submission, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// TransitionStatus godoc
// @Summary Change submission status
// @Description expectedUpdatedAt must equal the submission's current updatedAt
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/status [patch]
func (h *SubmissionHandler) TransitionStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	submission, err := h.service.TransitionStatus(c.Request.Context(), c.Param("id"), req.Status, actor, req.ExpectedUpdatedAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// AppendComment godoc
// @Summary Add a sales comment
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.CommentRequest true "Comment"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/comments [post]
func (h *SubmissionHandler) AppendComment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	submission, err := h.service.AppendComment(c.Request.Context(), c.Param("id"), req.Text, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Recompute godoc
// @Summary Recompute a stored estimate
// @Description Writes only when the estimate changed under the current rules
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/recompute [post]
func (h *SubmissionHandler) Recompute(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	submission, changed, err := h.service.Recompute(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RecomputeResponse{Submission: submission, Changed: changed}, nil)
}

// AuditTrail godoc
// @Summary Submission audit trail
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/audit [get]
func (h *SubmissionHandler) AuditTrail(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	entries, err := h.audit.Trail(c.Request.Context(), models.AuditEntitySubmission, c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
