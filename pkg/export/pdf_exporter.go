package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// DocumentRow is a single label/value line rendered in a PDF document.
type DocumentRow struct {
	Label string
	Value string
}

// Document describes a printable service-request document: a header block
// with request metadata followed by the submitted form values.
type Document struct {
	Title    string
	Subtitle string
	Meta     []DocumentRow
	Form     []DocumentRow
}

// PDFExporter renders request documents via gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF for the given document.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, doc.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	if len(doc.Meta) > 0 {
		e.renderRows(pdf, doc.Meta)
		pdf.Ln(4)
	}

	if len(doc.Form) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "Submitted form data", "B", 1, "", false, 0, "")
		pdf.Ln(1)
		e.renderRows(pdf, doc.Form)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) renderRows(pdf *gofpdf.Fpdf, rows []DocumentRow) {
	const labelWidth = 70.0
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(labelWidth, 7, row.Label, "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		value := row.Value
		if value == "" {
			value = "-"
		}
		pdf.CellFormat(0, 7, value, "1", 1, "", false, 0, "")
	}
}
