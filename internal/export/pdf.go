package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// A4 portrait geometry in millimeters.
const (
	pageMargin   = 15.0
	contentWidth = 180.0
)

// renderPDF lays the document out on A4 pages. Text passes through the
// cp1252 translator so the core fonts keep unit glyphs; fpdf's auto page
// break handles long tables.
func renderPDF(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(doc.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentWidth, 10, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.Ln(1)
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range doc.Meta {
		pdf.CellFormat(35, 6, tr(row.Label), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentWidth-35, 6, tr(row.Value), "", 1, "L", false, 0, "")
	}

	for _, section := range doc.Sections {
		renderSection(pdf, tr, section)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderSection(pdf *fpdf.Fpdf, tr func(string) string, section Section) {
	if section.PageBreak {
		pdf.AddPage()
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentWidth, 8, tr(section.Heading), "", 1, "L", false, 0, "")

	columns := len(section.Header)
	if columns == 0 && len(section.Rows) > 0 {
		columns = len(section.Rows[0])
	}
	widths := columnWidths(section.Widths, columns)

	if len(section.Header) > 0 {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(235, 235, 235)
		for i, cell := range section.Header {
			pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range section.Rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 6, fit(pdf, tr(cell), widths[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(section.Footer) > 0 {
		pdf.SetFont("Helvetica", "B", 9)
		for i, cell := range section.Footer {
			pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if section.Note != "" {
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(contentWidth, 5, tr(section.Note), "", "L", false)
	}
}

// columnWidths scales relative weights to the printable width. A weight
// slice that does not match the column count falls back to equal columns.
func columnWidths(weights []float64, columns int) []float64 {
	if columns == 0 {
		return nil
	}
	if len(weights) != columns {
		weights = make([]float64, columns)
		for i := range weights {
			weights[i] = 1
		}
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	widths := make([]float64, columns)
	for i, w := range weights {
		widths[i] = contentWidth * w / total
	}
	return widths
}

// fit trims cell text that would overflow its column. Input is already
// cp1252, so byte slicing cannot split a rune.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > limit {
		s = s[:len(s)-1]
	}
	return s + "..."
}
