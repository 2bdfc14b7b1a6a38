package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported encodings.
var ErrUnknownFormat = errors.New("export: unknown format")

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value onto a Format, defaulting to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Build renders rows in format f.
func Build(f Format, rows []Row, generated time.Time) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return BuildXLSX(rows)
	case FormatPDF:
		return BuildPDF(rows, generated)
	default:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, rows); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// WriteCSV writes the header and rows as comma-separated text.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildXLSX renders rows on a single "history" sheet.
func BuildXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "history"
	f.SetSheetName("Sheet1", sheet)
	for i, col := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col)
	}
	for r, row := range rows {
		for c, v := range row.Cells() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var pdfWidths = []float64{38, 26, 70, 16, 22, 18}

// BuildPDF renders rows as a landscape table.
func BuildPDF(rows []Row, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Operator History")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	for i, col := range Columns {
		pdf.CellFormat(pdfWidths[i], 6, col, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, row := range rows {
		for i, v := range row.Cells() {
			v = strings.ReplaceAll(v, "→", "->")
			pdf.CellFormat(pdfWidths[i], 5, tr(v), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
