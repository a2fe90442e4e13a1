package grocery

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	FormatPDF = "pdf"
	FormatCSV = "csv"
	FormatTXT = "txt"
)

func ValidFormat(f string) bool {
	return f == FormatPDF || f == FormatCSV || f == FormatTXT
}

func ContentType(format string) string {
	switch format {
	case FormatPDF:
		return "application/pdf"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Document is a printable flat grocery list.
type Document struct {
	Title       string
	RangeStart  string
	RangeEnd    string
	Lines       []FlatLine
	GeneratedAt time.Time
}

// Render encodes doc in format.
func Render(format string, doc Document) ([]byte, error) {
	switch format {
	case FormatPDF:
		return renderPDF(doc)
	case FormatCSV:
		return renderCSV(doc)
	case FormatTXT:
		return renderTXT(doc), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func renderCSV(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"item", "count"}); err != nil {
		return nil, err
	}
	for _, l := range doc.Lines {
		if err := w.Write([]string{l.Name, strconv.Itoa(l.Count)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTXT(doc Document) []byte {
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s - %s\n\n", doc.RangeStart, doc.RangeEnd)
	if len(doc.Lines) == 0 {
		b.WriteString(NoMealsPlaceholder + "\n")
	}
	for _, l := range doc.Lines {
		b.WriteString("[ ] ")
		b.WriteString(l.Text())
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func renderPDF(doc Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("meal-planner", true)
	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(doc.Title))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("%s - %s", doc.RangeStart, doc.RangeEnd)))
	pdf.Ln(7)
	if !doc.GeneratedAt.IsZero() {
		pdf.SetFont("Arial", "I", 8)
		pdf.Cell(0, 5, "Generated "+doc.GeneratedAt.UTC().Format(time.RFC1123))
		pdf.Ln(8)
	}

	pdf.SetFont("Arial", "", 11)
	if len(doc.Lines) == 0 {
		pdf.MultiCell(0, 6, tr(NoMealsPlaceholder), "", "L", false)
	}
	for _, l := range doc.Lines {
		x, y := pdf.GetXY()
		pdf.Rect(x, y+1.5, 4, 4, "D")
		pdf.SetX(x + 7)
		pdf.CellFormat(0, 7, tr(l.Text()), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
