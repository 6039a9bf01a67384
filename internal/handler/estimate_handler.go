package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/migration-estimator-api/internal/dto"
	"github.com/noah-isme/migration-estimator-api/internal/estimator"
	"github.com/noah-isme/migration-estimator-api/internal/middleware"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/pkg/response"
)

type estimateService interface {
	Evaluate(ctx context.Context, inputs models.TechnicalInputs) (models.EstimateBreakdown, bool, error)
	Catalog() []estimator.AddonDefinition
	RulesVersion() string
	QuoteAddons(services []models.AddonService, weeks int64) (models.AddonQuote, error)
}

// EstimateHandler exposes the pricing calculator.
type EstimateHandler struct {
	service estimateService
}

// NewEstimateHandler constructs an estimate handler.
func NewEstimateHandler(svc estimateService) *EstimateHandler {
	return &EstimateHandler{service: svc}
}

// Evaluate godoc
// @Summary Evaluate an estimate
// @Description Prices a migration from message volume, add-ons and data preparation size
// @Tags Estimates
// @Accept json
// @Produce json
// @Param payload body dto.EstimateRequest true "Estimate inputs"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /estimates [post]
func (h *EstimateHandler) Evaluate(c *gin.Context) {
	var req dto.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	inputs, err := req.TechnicalInputs()
	if err != nil {
		response.Error(c, err)
		return
	}
	breakdown, cached, err := h.service.Evaluate(c.Request.Context(), inputs)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, dto.EstimateResponse{Estimate: breakdown, Cached: cached}, nil, middleware.ExtractMeta(c))
}

// Addons godoc
// @Summary List add-on services
// @Tags Estimates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /estimates/addons [get]
func (h *EstimateHandler) Addons(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.AddonCatalogResponse{
		RulesVersion: h.service.RulesVersion(),
		Addons:       h.service.Catalog(),
	}, nil)
}

// QuoteAddons godoc
// @Summary Price add-ons for a fixed duration
// @Tags Estimates
// @Accept json
// @Produce json
// @Param payload body dto.AddonQuoteRequest true "Add-on selection"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /estimates/addons/quote [post]
func (h *EstimateHandler) QuoteAddons(c *gin.Context) {
	var req dto.AddonQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	quote, err := h.service.QuoteAddons(req.AddonServices, req.Weeks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}
