package dataset

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/fetcher"
	"github.com/sells-group/retail-insights/internal/model"
)

// Column names of the retail spreadsheet, normalized by normalizeHeader.
const (
	colInvoiceNo   = "invoiceno"
	colStockCode   = "stockcode"
	colDescription = "description"
	colQuantity    = "quantity"
	colInvoiceDate = "invoicedate"
	colUnitPrice   = "unitprice"
	colCustomerID  = "customerid"
	colCountry     = "country"
)

var requiredColumns = []string{colDescription, colQuantity, colInvoiceDate}

// FileOptions selects the sheet of a workbook and the encoding of a CSV.
type FileOptions struct {
	SheetName  string
	SheetIndex int
	Charset    string // CSV only; empty means UTF-8
}

// Source describes where the transactions spreadsheet lives.
type Source struct {
	Location string // local path or http(s) URL
	FileOptions
	CacheDir string // download target for remote locations
}

// FromTable converts a parsed sheet into a Dataset. Rows lacking a
// description, a numeric quantity or a parseable date are skipped.
func FromTable(tbl *fetcher.Table) (*Dataset, error) {
	colIdx := make(map[string]int, len(tbl.Header))
	for i, h := range tbl.Header {
		key := normalizeHeader(h)
		if _, dup := colIdx[key]; !dup {
			colIdx[key] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("dataset: missing required column %q (header: %v)", col, tbl.Header)
		}
	}

	txs := make([]model.Transaction, 0, len(tbl.Rows))
	skipped := 0
	for _, record := range tbl.Rows {
		desc := getCol(record, colIdx, colDescription)
		qty, okQty := parseQuantity(getCol(record, colIdx, colQuantity))
		date, okDate := parseInvoiceDate(getCol(record, colIdx, colInvoiceDate))
		if desc == "" || !okQty || !okDate {
			skipped++
			continue
		}

		txs = append(txs, model.Transaction{
			InvoiceNo:   getCol(record, colIdx, colInvoiceNo),
			StockCode:   getCol(record, colIdx, colStockCode),
			Description: desc,
			Quantity:    qty,
			UnitPrice:   parseFloat64Or(getCol(record, colIdx, colUnitPrice), 0),
			InvoiceDate: date,
			CustomerID:  strings.TrimSuffix(getCol(record, colIdx, colCustomerID), ".0"),
			Country:     getCol(record, colIdx, colCountry),
		})
	}

	d := New(txs)
	d.skipped = skipped
	return d, nil
}

// LoadFile reads a local .xlsx or .csv file into a Dataset. A .zip archive
// is unpacked next to itself and its single spreadsheet is loaded.
func LoadFile(filePath string, opts FileOptions) (*Dataset, error) {
	var (
		tbl *fetcher.Table
		err error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".zip":
		sheet, zipErr := fetcher.ExtractSheet(filePath, filepath.Dir(filePath))
		if zipErr != nil {
			return nil, eris.Wrapf(zipErr, "dataset: unpack %s", filePath)
		}
		return LoadFile(sheet, opts)
	case ".csv":
		f, openErr := os.Open(filePath)
		if openErr != nil {
			return nil, eris.Wrap(openErr, "dataset: open csv")
		}
		defer f.Close() //nolint:errcheck
		tbl, err = fetcher.ReadCSV(f, fetcher.CSVOptions{TrimSpace: true, Charset: opts.Charset})
	default:
		tbl, err = fetcher.ReadXLSX(filePath, fetcher.XLSXOptions{SheetName: opts.SheetName, SheetIndex: opts.SheetIndex})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", filePath)
	}

	d, err := FromTable(tbl)
	if err != nil {
		return nil, err
	}

	zap.L().Info("dataset: loaded transactions",
		zap.String("path", filePath),
		zap.Int("rows", d.Len()),
		zap.Int("skipped", d.Skipped()),
		zap.Int("products", len(d.products)),
	)
	return d, nil
}

// Fetch loads the dataset from src, downloading it first with f when the
// location is remote. A cached copy is reused when the server reports it is
// unchanged.
func Fetch(ctx context.Context, src Source, f fetcher.Fetcher) (*Dataset, error) {
	local := src.Location
	if fetcher.IsRemote(src.Location) {
		if f == nil {
			return nil, eris.New("dataset: remote location requires a fetcher")
		}
		u, err := url.Parse(src.Location)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: parse location")
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			name = "transactions.xlsx"
		}
		cacheDir := src.CacheDir
		if cacheDir == "" {
			cacheDir = os.TempDir()
		}
		local = filepath.Join(cacheDir, name)

		changed, err := f.DownloadToFile(ctx, src.Location, local)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: download")
		}
		zap.L().Info("dataset: remote source resolved",
			zap.String("url", src.Location),
			zap.String("path", local),
			zap.Bool("downloaded", changed),
		)
	}

	return LoadFile(local, src.FileOptions)
}
