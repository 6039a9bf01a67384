package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed in a document section.
type Field struct {
	Label string
	Value string
}

// Section is a titled block of fields.
type Section struct {
	Heading string
	Fields  []Field
}

// Document is the printable form of a report: summary sections followed by an optional table.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
	Table    *Dataset
	Footer   string
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF bytes for doc.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range doc.Sections {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, tr(section.Heading), "B", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, field := range section.Fields {
			pdf.CellFormat(60, 6, tr(field.Label), "", 0, "", false, 0, "")
			pdf.MultiCell(0, 6, tr(field.Value), "", "", false)
		}
		pdf.Ln(3)
	}

	if doc.Table != nil && len(doc.Table.Headers) > 0 {
		pdf.SetFont("Arial", "B", 10)
		colWidth := 180.0 / float64(len(doc.Table.Headers))
		for _, header := range doc.Table.Headers {
			pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, row := range doc.Table.Rows {
			for _, header := range doc.Table.Headers {
				pdf.CellFormat(colWidth, 7, tr(row[header]), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if doc.Footer != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, tr(doc.Footer), "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
