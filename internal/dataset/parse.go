package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// getCol gets a column value by name from a record, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseQuantity parses an integer quantity, accepting spreadsheet floats like "6.0".
func parseQuantity(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// parseFloat64Or parses a string as a float64, returning def if parsing fails.
func parseFloat64Or(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return def
	}
	return v
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// excelEpoch is day zero of the 1900 date system as used by Excel serials.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseInvoiceDate parses the date formats seen in exports of the retail
// dataset, including bare Excel serial numbers.
func parseInvoiceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		days := math.Floor(serial)
		secs := math.Round((serial - days) * 86400)
		return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
	}
	return time.Time{}, false
}
