package dto

import (
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/migration-estimator-api/internal/estimator"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// TechnicalInputsRequest mirrors models.TechnicalInputs with a raw JSON volume.
type TechnicalInputsRequest struct {
	MessageVolume  float64               `json:"messageVolume"`
	AddonServices  []models.AddonService `json:"addonServices,omitempty"`
	DataPrepSize   models.DataPrepSize   `json:"dataPrepSize,omitempty"`
	LicenseTier    models.LicenseTier    `json:"licenseTier"`
	ADIntegration  bool                  `json:"adIntegration"`
	CustomApps     []string              `json:"customApps,omitempty"`
	ThirdPartyApps []string              `json:"thirdPartyApps,omitempty"`
	Integrations   string                `json:"integrations,omitempty"`
}

// CreateSubmissionRequest captures POST /submissions payload.
type CreateSubmissionRequest struct {
	CustomerInfo    models.CustomerInfo    `json:"customerInfo"`
	TechnicalInputs TechnicalInputsRequest `json:"technicalInputs"`
}

// Inputs converts the technical section into calculator inputs.
func (r CreateSubmissionRequest) Inputs() (models.TechnicalInputs, error) {
	volume, err := estimator.VolumeFromFloat(r.TechnicalInputs.MessageVolume)
	if err != nil {
		return models.TechnicalInputs{}, err
	}
	in := r.TechnicalInputs
	return models.TechnicalInputs{
		MessageVolume:  volume,
		AddonServices:  in.AddonServices,
		DataPrepSize:   in.DataPrepSize,
		LicenseTier:    in.LicenseTier,
		ADIntegration:  in.ADIntegration,
		CustomApps:     in.CustomApps,
		ThirdPartyApps: in.ThirdPartyApps,
		Integrations:   in.Integrations,
	}, nil
}

// TransitionRequest captures PATCH /submissions/:id/status payload.
// ExpectedUpdatedAt is the concurrency token last read by the caller.
type TransitionRequest struct {
	Status            models.SubmissionStatus `json:"status" binding:"required"`
	ExpectedUpdatedAt time.Time               `json:"expectedUpdatedAt" binding:"required"`
}

// CommentRequest captures POST /submissions/:id/comments payload.
type CommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// RecomputeResponse reports whether a recompute changed the stored estimate.
type RecomputeResponse struct {
	Submission *models.Submission `json:"submission"`
	Changed    bool               `json:"changed"`
}

// SubmissionListQuery holds the parsed GET /submissions query string.
type SubmissionListQuery struct {
	Status  string `form:"status"`
	OwnerID string `form:"ownerId"`
	Limit   string `form:"limit"`
	Offset  string `form:"offset"`
}

// Filter converts the query into a repository filter. status accepts a comma separated list.
func (q SubmissionListQuery) Filter() (models.SubmissionFilter, error) {
	filter := models.SubmissionFilter{OwnerID: strings.TrimSpace(q.OwnerID), Limit: 50}
	for _, raw := range strings.Split(q.Status, ",") {
		if status := strings.TrimSpace(raw); status != "" {
			filter.Status = append(filter.Status, models.SubmissionStatus(status))
		}
	}
	if q.Limit != "" {
		limit, err := strconv.Atoi(q.Limit)
		if err != nil || limit <= 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer")
		}
		if limit > 200 {
			limit = 200
		}
		filter.Limit = limit
	}
	if q.Offset != "" {
		offset, err := strconv.Atoi(q.Offset)
		if err != nil || offset < 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
