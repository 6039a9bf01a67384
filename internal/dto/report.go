package dto

import (
	"time"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

// ReportRequest captures POST /submissions/:id/report payload.
type ReportRequest struct {
	Format models.ReportFormat `json:"format"`
}

// ReportLinkResponse is returned once a report has been rendered.
type ReportLinkResponse struct {
	URL       string              `json:"url"`
	Format    models.ReportFormat `json:"format"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// NewReportLinkResponse adapts a stored artifact for the API.
func NewReportLinkResponse(artifact *models.ReportArtifact) ReportLinkResponse {
	return ReportLinkResponse{URL: artifact.URL, Format: artifact.Format, ExpiresAt: artifact.ExpiresAt}
}
