package render

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pdfgateway/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReport renders a CSV upload as a table. The first record is the header.
func CSVReport(r io.Reader, now time.Time) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &domain.ValidationError{Field: "file", Reason: pe.Error()}
		}
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	header, rows, err := normalize(records)
	if err != nil {
		return nil, err
	}
	return table("CSV Data Report", header, rows, now)
}

// XLSXReport renders one worksheet as a table. An empty sheet name selects the first sheet.
func XLSXReport(r io.Reader, sheet string, now time.Time) ([]byte, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.ValidationError{Field: "file", Reason: "not a readable xlsx workbook"}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &domain.ValidationError{Field: "file", Reason: "workbook has no sheets"}
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, &domain.ValidationError{Field: "sheet", Reason: fmt.Sprintf("sheet %q not found", sheet)}
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	header, rows, err := sheetTable(records)
	if err != nil {
		return nil, err
	}
	return table("Spreadsheet Report", header, rows, now)
}

// normalize splits the header off and pads short rows to its width.
func normalize(records [][]string) ([]string, [][]string, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, nil, &domain.ValidationError{Field: "file", Reason: "no columns to parse from file"}
	}
	header := records[0]
	rows := make([][]string, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, nil, &domain.ValidationError{
				Field:  "file",
				Reason: fmt.Sprintf("row %d has %d fields, header has %d", i+2, len(rec), len(header)),
			}
		}
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// sheetTable drops leading blank rows and widens every row to the widest one.
// excelize trims trailing empty cells, so a short header gets blank column names.
func sheetTable(records [][]string) ([]string, [][]string, error) {
	for len(records) > 0 && blankRow(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, nil, &domain.ValidationError{Field: "file", Reason: "no columns to parse from file"}
	}
	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}
	widened := make([][]string, len(records))
	for i, rec := range records {
		widened[i] = rec
		if len(rec) < width {
			widened[i] = make([]string, width)
			copy(widened[i], rec)
		}
	}
	return widened[0], widened[1:], nil
}

func blankRow(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
