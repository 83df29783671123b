package dataset

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/time/rate"

	"github.com/sells-group/retail-insights/internal/fetcher"
	"github.com/sells-group/retail-insights/internal/resilience"
)

const retailCSV = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country
536365,85123A,WHITE HANGING HEART T-LIGHT HOLDER,6,2010-12-01 08:26:00,2.55,17850.0,United Kingdom
536365,71053,WHITE METAL LANTERN,6,12/1/2010 8:26,3.39,17850,United Kingdom
536366,22633,HAND WARMER UNION JACK,6,2010-12-02T08:28:00Z,1.85,17850,United Kingdom
536367,22745,,6,2010-12-02 08:34:00,2.10,13047,United Kingdom
536368,22748,POPPY'S PLAYHOUSE KITCHEN,abc,2010-12-02 08:34:00,2.10,13047,United Kingdom
536369,22749,FELTCRAFT PRINCESS CHARLOTTE DOLL,1,not-a-date,3.75,13047,United Kingdom
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Online_Retail.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFile_CSV(t *testing.T) {
	d, err := LoadFile(writeCSV(t, retailCSV), FileOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 3, d.Skipped())

	first := d.Transactions()[0]
	assert.Equal(t, "536365", first.InvoiceNo)
	assert.Equal(t, "85123A", first.StockCode)
	assert.Equal(t, "WHITE HANGING HEART T-LIGHT HOLDER", first.Description)
	assert.Equal(t, int64(6), first.Quantity)
	assert.InDelta(t, 2.55, first.UnitPrice, 1e-9)
	assert.Equal(t, "17850", first.CustomerID)
	assert.Equal(t, "United Kingdom", first.Country)
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), first.InvoiceDate)

	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), d.Transactions()[1].InvoiceDate)
}

func TestLoadFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Online Retail")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"InvoiceNo", "StockCode", "Description", "Quantity", "InvoiceDate", "UnitPrice", "CustomerID", "Country"},
		{"536365", "71053", "WHITE METAL LANTERN", "6", "2010-12-01 08:26:00", "3.39", "17850", "United Kingdom"},
	} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	r := sheet.AddRow()
	for _, v := range []string{"536366", "22633", "HAND WARMER UNION JACK", "6"} {
		r.AddCell().SetString(v)
	}
	r.AddCell().SetDateTime(time.Date(2010, 12, 2, 9, 0, 0, 0, time.UTC))
	r.AddCell().SetFloat(1.85)

	p := filepath.Join(t.TempDir(), "Online_Retail.xlsx")
	require.NoError(t, f.Save(p))

	d, err := LoadFile(p, FileOptions{SheetName: "Online Retail"})
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, []string{"WHITE METAL LANTERN", "HAND WARMER UNION JACK"}, d.Products())

	second := d.Transactions()[1]
	assert.Equal(t, time.Date(2010, 12, 2, 0, 0, 0, 0, time.UTC), second.Day())
	assert.InDelta(t, 1.85, second.UnitPrice, 1e-9)
}

func TestLoadFile_Latin1CSV(t *testing.T) {
	content := "InvoiceNo,Description,Quantity,InvoiceDate,UnitPrice\n" +
		"536370,CR\xc8ME BRUL\xc9E DISH,2,2010-12-01 08:45:00,4.95\n"
	d, err := LoadFile(writeCSV(t, content), FileOptions{Charset: "iso-8859-1"})
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())
	assert.Equal(t, "CRÈME BRULÉE DISH", d.Transactions()[0].Description)
}

func TestLoadFile_ZIP(t *testing.T) {
	dir := t.TempDir()
	zp := filepath.Join(dir, "online+retail.zip")
	out, err := os.Create(zp)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("Online Retail.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(retailCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	d, err := LoadFile(zp, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.FileExists(t, filepath.Join(dir, "Online Retail.csv"))
}

func TestLoadFile_ZIPWithoutSheet(t *testing.T) {
	zp := filepath.Join(t.TempDir(), "empty.zip")
	out, err := os.Create(zp)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(out).Close())
	require.NoError(t, out.Close())

	_, err = LoadFile(zp, FileOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset: unpack")
}

func TestFromTable_MissingColumn(t *testing.T) {
	_, err := FromTable(&fetcher.Table{Header: []string{"InvoiceNo", "Description", "Quantity"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "invoicedate"`)
}

func TestFromTable_HeaderVariants(t *testing.T) {
	d, err := FromTable(&fetcher.Table{
		Header: []string{"invoice_no", "DESCRIPTION", "Quantity", "Invoice Date", "unit_price"},
		Rows:   [][]string{{"1", "MUG", "2.0", "2011-01-01", "1.5"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())
	assert.Equal(t, "1", d.Transactions()[0].InvoiceNo)
	assert.Equal(t, int64(2), d.Transactions()[0].Quantity)
	assert.InDelta(t, 1.5, d.Transactions()[0].UnitPrice, 1e-9)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.xlsx"), FileOptions{})
	require.Error(t, err)
}

func TestFetch_Local(t *testing.T) {
	d, err := Fetch(context.Background(), Source{Location: writeCSV(t, retailCSV)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
}

func TestFetch_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(retailCSV))
	}))
	defer srv.Close()

	cache := t.TempDir()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		PerHostRate: rate.Inf,
		Retry:       resilience.RetryConfig{MaxAttempts: 1},
	})

	d, err := Fetch(context.Background(), Source{Location: srv.URL + "/exports/Online_Retail.csv", CacheDir: cache}, f)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.FileExists(t, filepath.Join(cache, "Online_Retail.csv"))
}

func TestFetch_RemoteWithoutFetcher(t *testing.T) {
	_, err := Fetch(context.Background(), Source{Location: "https://example.com/x.xlsx"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a fetcher")
}

func TestParseInvoiceDate(t *testing.T) {
	want := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	for _, s := range []string{"2010-12-01 08:26:00", "2010-12-01T08:26:00Z", "12/1/2010 8:26", "12/1/10 8:26", "40513.35138888889"} {
		got, ok := parseInvoiceDate(s)
		require.True(t, ok, s)
		assert.WithinDuration(t, want, got, time.Second, s)
	}

	_, ok := parseInvoiceDate("")
	assert.False(t, ok)
	_, ok = parseInvoiceDate("yesterday")
	assert.False(t, ok)
}

func TestParseQuantity(t *testing.T) {
	for in, want := range map[string]int64{"6": 6, "-3": -3, "12.0": 12, " 4 ": 4} {
		got, ok := parseQuantity(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseQuantity("six")
	assert.False(t, ok)
	_, ok = parseQuantity("")
	assert.False(t, ok)
}
