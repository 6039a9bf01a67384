package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AddonService identifies an optional professional service priced per week.
type AddonService string

const (
	AddonHypercareSupport         AddonService = "hypercare_support"
	AddonAdoptionChangeManagement AddonService = "adoption_change_management"
	AddonApplicationIntegration   AddonService = "application_integration_dev"
)

// DataPrepSize buckets the data preparation effort.
type DataPrepSize string

const (
	DataPrepNone   DataPrepSize = "none"
	DataPrepSmall  DataPrepSize = "small"
	DataPrepMedium DataPrepSize = "medium"
	DataPrepLarge  DataPrepSize = "large"
)

// LicenseTier is the customer's current Microsoft 365 licensing.
type LicenseTier string

const (
	LicenseE1               LicenseTier = "E1"
	LicenseE3               LicenseTier = "E3"
	LicenseE5               LicenseTier = "E5"
	LicenseF1               LicenseTier = "F1"
	LicenseF3               LicenseTier = "F3"
	LicenseBusinessBasic    LicenseTier = "Business Basic"
	LicenseBusinessStandard LicenseTier = "Business Standard"
	LicenseBusinessPremium  LicenseTier = "Business Premium"
	LicenseNone             LicenseTier = "None"
)

// AddonTiming selects which duration add-on weekly rates are multiplied by.
type AddonTiming string

const (
	AddonTimingTotalWeeks AddonTiming = "total_weeks"
	AddonTimingBaseWeeks  AddonTiming = "base_weeks"
)

// AddonLine is the priced contribution of a single add-on.
type AddonLine struct {
	Service    AddonService    `json:"service"`
	WeeklyRate decimal.Decimal `json:"weeklyRate"`
	Weeks      int64           `json:"weeks"`
	Cost       decimal.Decimal `json:"cost"`
}

// EstimateBreakdown is the derived cost and timeline for a set of technical inputs.
type EstimateBreakdown struct {
	MessageVolume    int64           `json:"messageVolume"`
	BaseCost         decimal.Decimal `json:"baseCost"`
	AdditionalTiers  int64           `json:"additionalTiers"`
	AdditionalCost   decimal.Decimal `json:"additionalCost"`
	AddonServiceCost decimal.Decimal `json:"addonServiceCost"`
	AddonLines       []AddonLine     `json:"addonLines"`
	DataPrepCost     decimal.Decimal `json:"dataPrepCost"`
	TotalCost        decimal.Decimal `json:"totalCost"`
	BaseWeeks        int64           `json:"baseWeeks"`
	AdditionalWeeks  int64           `json:"additionalWeeks"`
	TotalWeeks       int64           `json:"totalWeeks"`
	RulesVersion     string          `json:"rulesVersion"`
	AddonTiming      AddonTiming     `json:"addonTiming"`
}

// Equal compares two breakdowns field by field, treating money by value.
func (e EstimateBreakdown) Equal(other EstimateBreakdown) bool {
	if e.MessageVolume != other.MessageVolume ||
		e.AdditionalTiers != other.AdditionalTiers ||
		e.BaseWeeks != other.BaseWeeks ||
		e.AdditionalWeeks != other.AdditionalWeeks ||
		e.TotalWeeks != other.TotalWeeks ||
		e.RulesVersion != other.RulesVersion ||
		e.AddonTiming != other.AddonTiming {
		return false
	}
	if !e.BaseCost.Equal(other.BaseCost) ||
		!e.AdditionalCost.Equal(other.AdditionalCost) ||
		!e.AddonServiceCost.Equal(other.AddonServiceCost) ||
		!e.DataPrepCost.Equal(other.DataPrepCost) ||
		!e.TotalCost.Equal(other.TotalCost) {
		return false
	}
	if len(e.AddonLines) != len(other.AddonLines) {
		return false
	}
	for i := range e.AddonLines {
		a, b := e.AddonLines[i], other.AddonLines[i]
		if a.Service != b.Service || a.Weeks != b.Weeks || !a.WeeklyRate.Equal(b.WeeklyRate) || !a.Cost.Equal(b.Cost) {
			return false
		}
	}
	return true
}

// Value marshals the breakdown to JSON for persistence.
func (e EstimateBreakdown) Value() (driver.Value, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal estimate breakdown: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the breakdown.
func (e *EstimateBreakdown) Scan(value interface{}) error {
	return scanJSON(value, e, "EstimateBreakdown")
}

func scanJSON(value interface{}, dest interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

// AddonQuote prices a set of add-ons over an explicit number of weeks.
type AddonQuote struct {
	Weeks int64           `json:"weeks"`
	Lines []AddonLine     `json:"lines"`
	Total decimal.Decimal `json:"total"`
}
