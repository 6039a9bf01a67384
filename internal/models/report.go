package models

import "time"

// ReportFormat enumerates supported report renderings.
type ReportFormat string

const (
	ReportFormatPDF ReportFormat = "pdf"
	ReportFormatCSV ReportFormat = "csv"
)

// EstimateReport is the structured payload handed to a report renderer.
type EstimateReport struct {
	SubmissionID string            `json:"submissionId"`
	CompanyName  string            `json:"companyName"`
	ContactName  string            `json:"contactName"`
	LicenseTier  LicenseTier       `json:"licenseTier"`
	Status       SubmissionStatus  `json:"status"`
	Estimate     EstimateBreakdown `json:"estimate"`
	GeneratedAt  time.Time         `json:"generatedAt"`
	GeneratedBy  string            `json:"generatedBy"`
}

// ReportArtifact references a rendered report available for download.
type ReportArtifact struct {
	URL       string       `json:"url"`
	Format    ReportFormat `json:"format"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// NewEstimateReport builds the report payload for a submission.
func NewEstimateReport(submission Submission, generatedBy string, at time.Time) EstimateReport {
	return EstimateReport{
		SubmissionID: submission.ID,
		CompanyName:  submission.CustomerInfo.CompanyName,
		ContactName:  submission.CustomerInfo.ContactName,
		LicenseTier:  submission.TechnicalInputs.LicenseTier,
		Status:       submission.Status,
		Estimate:     submission.Estimate,
		GeneratedAt:  at.UTC(),
		GeneratedBy:  generatedBy,
	}
}

// RecomputeBatch summarises a queued batch recompute.
type RecomputeBatch struct {
	ID          string    `json:"id"`
	Queued      int       `json:"queued"`
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

// SystemMetrics is a point-in-time summary of service activity.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	EstimatesComputed        uint64    `json:"estimatesComputed"`
	WorkflowTransitions      uint64    `json:"workflowTransitions"`
	AccessDenied             uint64    `json:"accessDenied"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
