package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/dto"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/service"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

type reportService interface {
	Generate(ctx context.Context, submissionID string, format models.ReportFormat, actor models.Actor) (*models.ReportArtifact, error)
	Open(token string) (*service.ReportDownload, error)
}

// ReportHandler exposes estimate report endpoints.
type ReportHandler struct {
	service reportService
	logger  *zap.Logger
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{service: svc, logger: logger}
}

// Generate godoc
// @Summary Render an estimate report
// @Description Returns a signed, expiring download link
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReportRequest false "Report format"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id}/report [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ReportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			response.Error(c, bindError(err))
			return
		}
	}
	artifact, err := h.service.Generate(c.Request.Context(), c.Param("id"), req.Format, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewReportLinkResponse(artifact))
}

// Download godoc
// @Summary Download a rendered report
// @Description The signed token is the credential
// @Tags Reports
// @Produce application/pdf
// @Produce text/csv
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /reports/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Stream(c, download.Filename, download.ContentType, info.Size(), download.File)
	h.logger.Debug("report downloaded", zap.String("filename", download.Filename))
}
