package estimator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// Calculator evaluates technical inputs against a fixed set of rules.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	rules Rules
}

// New constructs a calculator. Invalid rules fall back to DefaultRules.
func New(rules Rules) *Calculator {
	if err := rules.Validate(); err != nil {
		rules = DefaultRules()
	}
	return &Calculator{rules: rules}
}

// Rules exposes the rules the calculator was built with.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// Evaluate computes the breakdown for inputs.
func (c *Calculator) Evaluate(inputs models.TechnicalInputs) (models.EstimateBreakdown, error) {
	return Calculate(c.rules, inputs)
}

// Hash returns the cache key for inputs under the calculator's rules.
func (c *Calculator) Hash(inputs models.TechnicalInputs) (string, error) {
	return InputHash(c.rules, inputs)
}

// Calculate is the pure pricing function.
func Calculate(rules Rules, inputs models.TechnicalInputs) (models.EstimateBreakdown, error) {
	volume := inputs.MessageVolume
	if volume < 0 {
		return models.EstimateBreakdown{}, appErrors.Clone(appErrors.ErrInvalidInput, "message volume must be non-negative")
	}
	dataPrep, err := dataPrepCost(rules, inputs.DataPrepSize)
	if err != nil {
		return models.EstimateBreakdown{}, err
	}
	addons, err := normalizeAddons(rules, inputs.AddonServices)
	if err != nil {
		return models.EstimateBreakdown{}, err
	}

	// The base allotment covers the first tier.
	tiers := int64(0)
	if volume > rules.TierSize {
		excess := volume - rules.TierSize
		tiers = excess / rules.TierSize
		if excess%rules.TierSize != 0 {
			tiers++
		}
	}
	additionalCost := rules.TierCost.Mul(decimal.NewFromInt(tiers))
	additionalWeeks := tiers * rules.TierWeeks
	totalWeeks := rules.BaseWeeks + additionalWeeks

	addonWeeks := totalWeeks
	if rules.AddonTiming == models.AddonTimingBaseWeeks {
		addonWeeks = rules.BaseWeeks
	}
	lines := make([]models.AddonLine, 0, len(addons))
	addonCost := decimal.Zero
	for _, service := range addons {
		rate := rules.Addons[service].WeeklyRate
		cost := rate.Mul(decimal.NewFromInt(addonWeeks))
		addonCost = addonCost.Add(cost)
		lines = append(lines, models.AddonLine{
			Service:    service,
			WeeklyRate: rate,
			Weeks:      addonWeeks,
			Cost:       cost,
		})
	}

	return models.EstimateBreakdown{
		MessageVolume:    volume,
		BaseCost:         rules.BaseCost,
		AdditionalTiers:  tiers,
		AdditionalCost:   additionalCost,
		AddonServiceCost: addonCost,
		AddonLines:       lines,
		DataPrepCost:     dataPrep,
		TotalCost:        rules.BaseCost.Add(additionalCost).Add(addonCost).Add(dataPrep),
		BaseWeeks:        rules.BaseWeeks,
		AdditionalWeeks:  additionalWeeks,
		TotalWeeks:       totalWeeks,
		RulesVersion:     rules.Version,
		AddonTiming:      rules.AddonTiming,
	}, nil
}

// VolumeFromFloat converts a decoded JSON number into a message volume.
func VolumeFromFloat(v float64) (int64, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, appErrors.Clone(appErrors.ErrInvalidInput, "message volume must be finite")
	case v < 0:
		return 0, appErrors.Clone(appErrors.ErrInvalidInput, "message volume must be non-negative")
	case v != math.Trunc(v):
		return 0, appErrors.Clone(appErrors.ErrInvalidInput, "message volume must be a whole number")
	case v >= math.MaxInt64:
		return 0, appErrors.Clone(appErrors.ErrInvalidInput, "message volume is too large")
	}
	return int64(v), nil
}

// InputHash returns a stable digest of the pricing-relevant inputs and rules version.
func InputHash(rules Rules, inputs models.TechnicalInputs) (string, error) {
	addons, err := normalizeAddons(rules, inputs.AddonServices)
	if err != nil {
		return "", err
	}
	size := inputs.DataPrepSize
	if size == "" {
		size = models.DataPrepNone
	}
	payload := struct {
		Version       string                `json:"version"`
		AddonTiming   models.AddonTiming    `json:"addonTiming"`
		MessageVolume int64                 `json:"messageVolume"`
		AddonServices []models.AddonService `json:"addonServices"`
		DataPrepSize  models.DataPrepSize   `json:"dataPrepSize"`
	}{rules.Version, rules.AddonTiming, inputs.MessageVolume, addons, size}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("hash estimate inputs: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func dataPrepCost(rules Rules, size models.DataPrepSize) (decimal.Decimal, error) {
	if size == "" {
		size = models.DataPrepNone
	}
	cost, ok := rules.DataPrep[size]
	if !ok {
		if size == models.DataPrepNone {
			return decimal.Zero, nil
		}
		return decimal.Zero, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown data prep size %q", size))
	}
	return cost, nil
}

// normalizeAddons validates, de-duplicates and sorts the selection.
func normalizeAddons(rules Rules, selected []models.AddonService) ([]models.AddonService, error) {
	seen := make(map[models.AddonService]struct{}, len(selected))
	out := make([]models.AddonService, 0, len(selected))
	for _, service := range selected {
		if _, ok := rules.Addons[service]; !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownAddon, fmt.Sprintf("unknown add-on service %q", service))
		}
		if _, dup := seen[service]; dup {
			continue
		}
		seen[service] = struct{}{}
		out = append(out, service)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
