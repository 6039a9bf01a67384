package dto

import (
	"github.com/noah-isme/migration-estimator-api/internal/estimator"
	"github.com/noah-isme/migration-estimator-api/internal/models"
)

// EstimateRequest captures POST /estimates payload. messageVolume arrives as a
// JSON number and is checked for integrality before use.
type EstimateRequest struct {
	MessageVolume float64               `json:"messageVolume"`
	AddonServices []models.AddonService `json:"addonServices,omitempty"`
	DataPrepSize  models.DataPrepSize   `json:"dataPrepSize,omitempty"`
}

// TechnicalInputs converts the request into calculator inputs.
func (r EstimateRequest) TechnicalInputs() (models.TechnicalInputs, error) {
	volume, err := estimator.VolumeFromFloat(r.MessageVolume)
	if err != nil {
		return models.TechnicalInputs{}, err
	}
	return models.TechnicalInputs{
		MessageVolume: volume,
		AddonServices: r.AddonServices,
		DataPrepSize:  r.DataPrepSize,
	}, nil
}

// EstimateResponse wraps a breakdown with its cache provenance.
type EstimateResponse struct {
	Estimate models.EstimateBreakdown `json:"estimate"`
	Cached   bool                     `json:"cached"`
}

// AddonQuoteRequest captures POST /estimates/addons/quote payload.
type AddonQuoteRequest struct {
	AddonServices []models.AddonService `json:"addonServices" binding:"required,min=1"`
	Weeks         int64                 `json:"weeks" binding:"required,gt=0"`
}

// AddonCatalogResponse lists the priced add-on services.
type AddonCatalogResponse struct {
	RulesVersion string                      `json:"rulesVersion"`
	Addons       []estimator.AddonDefinition `json:"addons"`
}
