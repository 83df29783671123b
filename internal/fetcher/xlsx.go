package fetcher

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Table is a sheet read into memory. The first non-empty row is the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns a lower-cased header name → column position map.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// ReadXLSX reads a sheet of an XLSX file into a Table. Date-formatted numeric
// cells are rendered as RFC 3339 timestamps so callers never see Excel serials.
func ReadXLSX(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := rowToStrings(row, f.Date1904)
		if isBlank(cells) {
			continue
		}
		if t.Header == nil {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}

	if t.Header == nil {
		return nil, eris.Errorf("xlsx: sheet %q has no header row", sheet.Name)
	}
	return t, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row, date1904 bool) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		if cell.Type() == xlsx.CellTypeNumeric && isDateFormat(cell.GetNumberFormat()) {
			if ts, err := cell.GetTime(date1904); err == nil {
				cells[j] = ts.Format(time.RFC3339)
				continue
			}
		}
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

// isDateFormat reports whether an Excel number format renders a date or time.
func isDateFormat(format string) bool {
	f := strings.ToLower(format)
	if f == "" || f == "general" || f == "@" {
		return false
	}
	// Drop quoted literals and bracketed colour/locale codes before matching.
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range f {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == '[' && !inQuote:
			inBracket = true
		case r == ']' && !inQuote:
			inBracket = false
		case !inQuote && !inBracket:
			b.WriteRune(r)
		}
	}
	f = b.String()
	return strings.Contains(f, "yy") || strings.Contains(f, "dd") ||
		strings.Contains(f, "h:mm") || strings.Contains(f, "mmm") ||
		(strings.Contains(f, "d") && strings.Contains(f, "m"))
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
