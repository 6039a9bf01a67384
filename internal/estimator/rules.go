package estimator

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

// DefaultRulesVersion tags breakdowns produced by DefaultRules.
const DefaultRulesVersion = "2024.1"

// AddonDefinition describes an entry in the add-on catalog.
type AddonDefinition struct {
	Service     models.AddonService `json:"service"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	WeeklyRate  decimal.Decimal     `json:"weeklyRate"`
}

// Rules holds every constant the calculator depends on.
type Rules struct {
	Version     string
	BaseCost    decimal.Decimal
	BaseWeeks   int64
	TierSize    int64
	TierCost    decimal.Decimal
	TierWeeks   int64
	AddonTiming models.AddonTiming
	Addons      map[models.AddonService]AddonDefinition
	DataPrep    map[models.DataPrepSize]decimal.Decimal
}

// DefaultRules returns the standard pricing.
func DefaultRules() Rules {
	return Rules{
		Version:     DefaultRulesVersion,
		BaseCost:    decimal.NewFromInt(35000),
		BaseWeeks:   8,
		TierSize:    3_000_000,
		TierCost:    decimal.NewFromInt(6500),
		TierWeeks:   1,
		AddonTiming: models.AddonTimingTotalWeeks,
		Addons: map[models.AddonService]AddonDefinition{
			models.AddonHypercareSupport: {
				Service:     models.AddonHypercareSupport,
				Name:        "Hypercare Support",
				Description: "Post-cutover support desk for migrated users",
				WeeklyRate:  decimal.NewFromInt(4000),
			},
			models.AddonAdoptionChangeManagement: {
				Service:     models.AddonAdoptionChangeManagement,
				Name:        "Adoption & Change Management",
				Description: "Training and communications to drive Teams adoption",
				WeeklyRate:  decimal.NewFromInt(2000),
			},
			models.AddonApplicationIntegration: {
				Service:     models.AddonApplicationIntegration,
				Name:        "Application Integration Development",
				Description: "Rebuilding Slack apps and workflows for Teams",
				WeeklyRate:  decimal.NewFromInt(4000),
			},
		},
		DataPrep: map[models.DataPrepSize]decimal.Decimal{
			models.DataPrepNone:   decimal.Zero,
			models.DataPrepSmall:  decimal.NewFromInt(2500),
			models.DataPrepMedium: decimal.NewFromInt(5000),
			models.DataPrepLarge:  decimal.NewFromInt(10000),
		},
	}
}

// WithAddonTiming returns a copy of the rules using the given timing.
func (r Rules) WithAddonTiming(timing models.AddonTiming) Rules {
	if timing != "" {
		r.AddonTiming = timing
	}
	return r
}

// Catalog lists the add-on services ordered by identifier.
func (r Rules) Catalog() []AddonDefinition {
	out := make([]AddonDefinition, 0, len(r.Addons))
	for _, def := range r.Addons {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Validate checks the rules are internally consistent.
func (r Rules) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("pricing rules: version is required")
	}
	if r.BaseCost.IsNegative() || r.TierCost.IsNegative() {
		return fmt.Errorf("pricing rules: costs must be non-negative")
	}
	if r.BaseWeeks < 0 || r.TierWeeks < 0 {
		return fmt.Errorf("pricing rules: weeks must be non-negative")
	}
	if r.TierSize <= 0 {
		return fmt.Errorf("pricing rules: tier size must be positive")
	}
	switch r.AddonTiming {
	case models.AddonTimingTotalWeeks, models.AddonTimingBaseWeeks:
	default:
		return fmt.Errorf("pricing rules: unsupported addon timing %q", r.AddonTiming)
	}
	for service, def := range r.Addons {
		if def.WeeklyRate.IsNegative() {
			return fmt.Errorf("pricing rules: addon %s has negative rate", service)
		}
	}
	for size, cost := range r.DataPrep {
		if cost.IsNegative() {
			return fmt.Errorf("pricing rules: data prep %s has negative cost", size)
		}
	}
	return nil
}

type rulesFile struct {
	Version     string                   `yaml:"version"`
	BaseCost    string                   `yaml:"base_cost"`
	BaseWeeks   *int64                   `yaml:"base_weeks"`
	TierSize    *int64                   `yaml:"tier_size"`
	TierCost    string                   `yaml:"tier_cost"`
	TierWeeks   *int64                   `yaml:"tier_weeks"`
	AddonTiming string                   `yaml:"addon_timing"`
	Addons      map[string]addonFileItem `yaml:"addons"`
	DataPrep    map[string]string        `yaml:"data_prep"`
}

type addonFileItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	WeeklyRate  string `yaml:"weekly_rate"`
}

// LoadRules reads a YAML rules file. Omitted keys fall back to DefaultRules.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read pricing rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules on top of the defaults.
func ParseRules(data []byte) (Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("decode pricing rules: %w", err)
	}

	rules := DefaultRules()
	if file.Version != "" {
		rules.Version = file.Version
	}
	var err error
	if rules.BaseCost, err = decimalOr(file.BaseCost, rules.BaseCost); err != nil {
		return Rules{}, fmt.Errorf("pricing rules base_cost: %w", err)
	}
	if rules.TierCost, err = decimalOr(file.TierCost, rules.TierCost); err != nil {
		return Rules{}, fmt.Errorf("pricing rules tier_cost: %w", err)
	}
	if file.BaseWeeks != nil {
		rules.BaseWeeks = *file.BaseWeeks
	}
	if file.TierSize != nil {
		rules.TierSize = *file.TierSize
	}
	if file.TierWeeks != nil {
		rules.TierWeeks = *file.TierWeeks
	}
	if file.AddonTiming != "" {
		rules.AddonTiming = models.AddonTiming(file.AddonTiming)
	}
	if len(file.Addons) > 0 {
		rules.Addons = make(map[models.AddonService]AddonDefinition, len(file.Addons))
		for key, item := range file.Addons {
			rate, err := decimal.NewFromString(item.WeeklyRate)
			if err != nil {
				return Rules{}, fmt.Errorf("pricing rules addon %s: %w", key, err)
			}
			service := models.AddonService(key)
			rules.Addons[service] = AddonDefinition{
				Service:     service,
				Name:        item.Name,
				Description: item.Description,
				WeeklyRate:  rate,
			}
		}
	}
	if len(file.DataPrep) > 0 {
		rules.DataPrep = map[models.DataPrepSize]decimal.Decimal{models.DataPrepNone: decimal.Zero}
		for key, raw := range file.DataPrep {
			cost, err := decimal.NewFromString(raw)
			if err != nil {
				return Rules{}, fmt.Errorf("pricing rules data_prep %s: %w", key, err)
			}
			rules.DataPrep[models.DataPrepSize(key)] = cost
		}
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func decimalOr(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if raw == "" {
		return fallback, nil
	}
	return decimal.NewFromString(raw)
}
