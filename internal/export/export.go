// Package export writes filtered tables as downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kartoza/funding-explorer/internal/dataset"
)

// Download file names
const (
	CSVFilename  = "filtered_projects.csv"
	XLSXFilename = "filtered_projects.xlsx"
	ProjectSheet = "projects"
)

// utf8BOM lets spreadsheet applications detect the encoding
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes a UTF-8 BOM followed by header and rows as RFC 4180 CSV
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// ProjectRows renders records in the table's header order with normalized
// dates and amounts.
func ProjectRows(p *dataset.Projects, records []dataset.ProjectRecord) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = p.Cells(r)
	}
	return rows
}

// WriteXLSX writes header and rows to a single-sheet workbook
func WriteXLSX(w io.Writer, sheet string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	if err := writeRow(sw, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeRow(sw, i+2, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRow(sw *excelize.StreamWriter, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", n, err)
	}
	return nil
}
