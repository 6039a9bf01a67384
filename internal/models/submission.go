package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionStatus is the sales review state of a submission.
type SubmissionStatus string

const (
	StatusNew           SubmissionStatus = "New"
	StatusContacted     SubmissionStatus = "Contacted"
	StatusInNegotiation SubmissionStatus = "In Negotiation"
	StatusClosedWon     SubmissionStatus = "Closed Won"
	StatusClosedLost    SubmissionStatus = "Closed Lost"
)

// CollaborationScope describes how the customer collaborates across organisations.
type CollaborationScope string

const (
	CollaborationInternal CollaborationScope = "Internal only"
	CollaborationExternal CollaborationScope = "External via Slack Connect"
	CollaborationBoth     CollaborationScope = "Both"
)

// CustomerInfo is the contact and commercial context captured with a submission.
type CustomerInfo struct {
	CompanyName        string             `json:"companyName" validate:"required,max=255"`
	ContactName        string             `json:"contactName" validate:"required,max=255"`
	Email              string             `json:"email" validate:"required,email"`
	Phone              string             `json:"phone" validate:"required,max=50"`
	ProjectLead        string             `json:"projectLead" validate:"required,max=255"`
	ITContact          string             `json:"itContact" validate:"required,max=255"`
	RoughBudget        decimal.Decimal    `json:"roughBudget"`
	IdealTimeline      string             `json:"idealTimeline" validate:"required"`
	TotalLicenses      int                `json:"totalLicenses" validate:"gt=0"`
	CollaborationScope CollaborationScope `json:"collaborationScope" validate:"required,oneof='Internal only' 'External via Slack Connect' Both"`
	OtherCollabTools   []string           `json:"otherCollabTools,omitempty"`
}

// Value marshals customer info to JSON for persistence.
func (c CustomerInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal customer info: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into customer info.
func (c *CustomerInfo) Scan(value interface{}) error {
	return scanJSON(value, c, "CustomerInfo")
}

// TechnicalInputs drive the pricing calculator. Immutable once submitted.
type TechnicalInputs struct {
	MessageVolume  int64          `json:"messageVolume" validate:"gte=0"`
	AddonServices  []AddonService `json:"addonServices,omitempty"`
	DataPrepSize   DataPrepSize   `json:"dataPrepSize,omitempty"`
	LicenseTier    LicenseTier    `json:"licenseTier" validate:"required,oneof=E1 E3 E5 F1 F3 'Business Basic' 'Business Standard' 'Business Premium' None"`
	ADIntegration  bool           `json:"adIntegration"`
	CustomApps     []string       `json:"customApps,omitempty"`
	ThirdPartyApps []string       `json:"thirdPartyApps,omitempty"`
	Integrations   string         `json:"integrations,omitempty"`
}

// Value marshals technical inputs to JSON for persistence.
func (t TechnicalInputs) Value() (driver.Value, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal technical inputs: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into technical inputs.
func (t *TechnicalInputs) Scan(value interface{}) error {
	return scanJSON(value, t, "TechnicalInputs")
}

// Submission is one customer's estimate request and its review state.
type Submission struct {
	ID              string            `db:"id" json:"id"`
	OwnerID         string            `db:"owner_id" json:"ownerId"`
	Status          SubmissionStatus  `db:"status" json:"status"`
	CustomerInfo    CustomerInfo      `db:"customer_info" json:"customerInfo"`
	TechnicalInputs TechnicalInputs   `db:"technical_inputs" json:"technicalInputs"`
	Estimate        EstimateBreakdown `db:"estimate" json:"estimate"`
	SalesComments   *string           `db:"sales_comments" json:"salesComments"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updatedAt"`
}

// SubmissionFilter constrains listing queries.
type SubmissionFilter struct {
	Status  []SubmissionStatus
	OwnerID string
	Limit   int
	Offset  int
}
