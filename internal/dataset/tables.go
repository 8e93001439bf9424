package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xuri/excelize/v2"
)

// table is a header plus raw string rows, independent of the file format
type table struct {
	header []string
	rows   [][]string
	// serialDates is set when bare numbers in date columns are Excel serials
	serialDates bool
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readXLSX reads the first sheet of a workbook. Raw cell values are used so
// that dates arrive as serial numbers instead of locale-formatted text.
func readXLSX(data []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows found in XLSX file")
	}

	return &table{header: rows[0], rows: rows[1:], serialDates: true}, nil
}

// readCSV reads a comma-separated table. Rows the CSV reader rejects are
// skipped and counted; they never abort the load.
func readCSV(data []byte) (*table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := &table{header: header}
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		t.rows = append(t.rows, row)
	}

	if skipped > 0 {
		log.Printf("Warning: skipped %d malformed CSV rows", skipped)
	}
	return t, nil
}

// readSQLite reads every column of tableName as text
func readSQLite(ctx context.Context, path, tableName string) (*table, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, tableName))
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	t := &table{header: columns}
	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			log.Printf("Warning: failed to scan row: %v", err)
			continue
		}
		row := make([]string, len(columns))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			}
		}
		t.rows = append(t.rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", tableName, err)
	}

	return t, nil
}
