// Package fetcher reads the tabular inputs of the service (XLSX, CSV) and
// downloads them over HTTP when they are not on local disk.
package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	// Charset names the input encoding (e.g. "iso-8859-1"); empty means UTF-8.
	Charset string
}

// ReadCSV reads a CSV stream with a header row into a Table.
// Rows may have a variable number of fields; short rows are padded.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	if opts.Charset != "" && !strings.EqualFold(opts.Charset, "utf-8") {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, eris.Wrapf(err, "csv: unsupported charset %q", opts.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	t := &Table{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if t.Header == nil {
			// Strip a UTF-8 BOM left by spreadsheet exports.
			if len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			t.Header = record
			continue
		}
		for len(record) < len(t.Header) {
			record = append(record, "")
		}
		t.Rows = append(t.Rows, record)
	}

	if t.Header == nil {
		return nil, eris.New("csv: empty input")
	}
	return t, nil
}

// WriteCSV writes a header and rows as CSV.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "csv: write rows")
	}
	return nil
}
