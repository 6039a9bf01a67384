package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/pkg/export"
)

// EstimateRenderer turns an estimate report payload into file bytes.
type EstimateRenderer struct {
	pdf *export.PDFExporter
	csv *export.CSVExporter
}

// NewEstimateRenderer constructs the renderer over the shared exporters.
func NewEstimateRenderer() *EstimateRenderer {
	return &EstimateRenderer{pdf: export.NewPDFExporter(), csv: export.NewCSVExporter()}
}

// Render produces the artifact bytes and its content type.
func (r *EstimateRenderer) Render(report models.EstimateReport, format models.ReportFormat) ([]byte, string, error) {
	switch format {
	case models.ReportFormatPDF:
		out, err := r.pdf.Render(estimateDocument(report))
		return out, "application/pdf", err
	case models.ReportFormatCSV:
		out, err := r.csv.Render(estimateDataset(report))
		return out, "text/csv", err
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", format)
	}
}

func estimateDocument(report models.EstimateReport) export.Document {
	e := report.Estimate
	doc := export.Document{
		Title:    "Slack to Teams Migration Estimate",
		Subtitle: report.CompanyName,
		Sections: []export.Section{
			{
				Heading: "Submission",
				Fields: []export.Field{
					{Label: "Reference", Value: report.SubmissionID},
					{Label: "Status", Value: string(report.Status)},
					{Label: "Contact", Value: report.ContactName},
					{Label: "License tier", Value: string(report.LicenseTier)},
				},
			},
			{
				Heading: "Estimate",
				Fields: []export.Field{
					{Label: "Message volume", Value: fmt.Sprintf("%d", e.MessageVolume)},
					{Label: "Base migration", Value: money(e.BaseCost.StringFixed(2))},
					{Label: "Additional tiers", Value: fmt.Sprintf("%d (%s)", e.AdditionalTiers, money(e.AdditionalCost.StringFixed(2)))},
					{Label: "Add-on services", Value: money(e.AddonServiceCost.StringFixed(2))},
					{Label: "Data preparation", Value: money(e.DataPrepCost.StringFixed(2))},
					{Label: "Total cost", Value: money(e.TotalCost.StringFixed(2))},
					{Label: "Timeline", Value: fmt.Sprintf("%d weeks (%d base + %d additional)", e.TotalWeeks, e.BaseWeeks, e.AdditionalWeeks)},
				},
			},
		},
		Footer: fmt.Sprintf("Pricing rules %s, add-ons billed over %s. Generated %s.",
			e.RulesVersion, strings.ReplaceAll(string(e.AddonTiming), "_", " "), report.GeneratedAt.UTC().Format(time.RFC1123)),
	}
	if len(e.AddonLines) > 0 {
		table := &export.Dataset{Headers: []string{"Service", "Weekly rate", "Weeks", "Cost"}}
		for _, line := range e.AddonLines {
			table.AddRow(map[string]string{
				"Service":     string(line.Service),
				"Weekly rate": money(line.WeeklyRate.StringFixed(2)),
				"Weeks":       fmt.Sprintf("%d", line.Weeks),
				"Cost":        money(line.Cost.StringFixed(2)),
			})
		}
		doc.Table = table
	}
	return doc
}

func estimateDataset(report models.EstimateReport) export.Dataset {
	e := report.Estimate
	data := export.Dataset{Headers: []string{"item", "weeks", "cost"}}
	data.AddRow(map[string]string{"item": "base", "weeks": fmt.Sprintf("%d", e.BaseWeeks), "cost": e.BaseCost.StringFixed(2)})
	data.AddRow(map[string]string{"item": "additional_tiers", "weeks": fmt.Sprintf("%d", e.AdditionalWeeks), "cost": e.AdditionalCost.StringFixed(2)})
	for _, line := range e.AddonLines {
		data.AddRow(map[string]string{"item": "addon:" + string(line.Service), "weeks": fmt.Sprintf("%d", line.Weeks), "cost": line.Cost.StringFixed(2)})
	}
	data.AddRow(map[string]string{"item": "data_prep", "cost": e.DataPrepCost.StringFixed(2)})
	data.AddRow(map[string]string{"item": "total", "weeks": fmt.Sprintf("%d", e.TotalWeeks), "cost": e.TotalCost.StringFixed(2)})
	return data
}

func money(amount string) string {
	return "USD " + amount
}
