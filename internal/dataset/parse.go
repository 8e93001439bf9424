package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"02.01.2006",
}

// Excel serial day numbers for 1900-01-01 and 9999-12-31
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// ParseDate parses a source date cell. When allowSerial is set a bare
// number is read as an Excel serial day. Returns nil when nothing matches.
func ParseDate(raw string, allowSerial bool) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	if !allowSerial {
		return nil
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < minExcelSerial || serial > maxExcelSerial {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	return &t
}

// ParseAmount parses a currency cell, repairing a comma decimal separator.
// Unparsable, non-finite and negative values are reported as missing.
func ParseAmount(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	return &v
}

// ParseGeolocation splits a "lat,lng" cell. Both coordinates must parse
// and lie within [-90,90] and [-180,180], otherwise both are missing.
func ParseGeolocation(raw string) (lat, lng *float64) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 2 {
		return nil, nil
	}

	la, ok := parseCoordinate(parts[0], 90)
	if !ok {
		return nil, nil
	}
	lo, ok := parseCoordinate(parts[1], 180)
	if !ok {
		return nil, nil
	}
	return &la, &lo
}

func parseCoordinate(s string, limit float64) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		return 0, false
	}
	return v, true
}

type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// lookup returns the column position of name, or -1
func (h headerIndex) lookup(name string) int {
	if i, ok := h[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// cell returns row[i], or "" for absent columns and short rows
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
