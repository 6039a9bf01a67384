package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/migration-estimator-api/internal/estimator"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// EstimateService evaluates estimates, serving repeats from the cache.
type EstimateService struct {
	calculator *estimator.Calculator
	cache      *CacheService
	metrics    *MetricsService
	ttl        time.Duration
	logger     *zap.Logger
}

// NewEstimateService constructs the service. cache and metrics may be nil.
func NewEstimateService(calculator *estimator.Calculator, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *EstimateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EstimateService{calculator: calculator, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

// Evaluate returns the breakdown for inputs and whether it came from the cache.
func (s *EstimateService) Evaluate(ctx context.Context, inputs models.TechnicalInputs) (models.EstimateBreakdown, bool, error) {
	key, err := s.calculator.Hash(inputs)
	if err != nil {
		return models.EstimateBreakdown{}, false, err
	}
	key = EstimateCacheKey(s.RulesVersion(), key)

	var cached models.EstimateBreakdown
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		s.metrics.RecordEstimate(true)
		return cached, true, nil
	}

	breakdown, err := s.calculator.Evaluate(inputs)
	if err != nil {
		return models.EstimateBreakdown{}, false, err
	}
	if err := s.cache.Set(ctx, key, breakdown, s.ttl); err != nil {
		s.logger.Debug("estimate not cached", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordEstimate(false)
	return breakdown, false, nil
}

// Catalog lists the add-on services with their weekly rates.
func (s *EstimateService) Catalog() []estimator.AddonDefinition {
	return s.calculator.Rules().Catalog()
}

// RulesVersion reports the version tag of the active pricing rules.
func (s *EstimateService) RulesVersion() string {
	return s.calculator.Rules().Version
}

// QuoteAddons prices the selected add-ons for a fixed duration.
func (s *EstimateService) QuoteAddons(services []models.AddonService, weeks int64) (models.AddonQuote, error) {
	if weeks <= 0 {
		return models.AddonQuote{}, appErrors.Clone(appErrors.ErrInvalidInput, "weeks must be positive")
	}
	rules := s.calculator.Rules()
	seen := make(map[models.AddonService]struct{}, len(services))
	quote := models.AddonQuote{Weeks: weeks, Lines: []models.AddonLine{}, Total: decimal.Zero}
	for _, service := range services {
		if _, dup := seen[service]; dup {
			continue
		}
		seen[service] = struct{}{}
		def, ok := rules.Addons[service]
		if !ok {
			return models.AddonQuote{}, appErrors.Clone(appErrors.ErrUnknownAddon, fmt.Sprintf("unknown add-on service %q", service))
		}
		cost := def.WeeklyRate.Mul(decimal.NewFromInt(weeks))
		quote.Lines = append(quote.Lines, models.AddonLine{Service: service, WeeklyRate: def.WeeklyRate, Weeks: weeks, Cost: cost})
		quote.Total = quote.Total.Add(cost)
	}
	sort.Slice(quote.Lines, func(i, j int) bool { return quote.Lines[i].Service < quote.Lines[j].Service })
	return quote, nil
}
