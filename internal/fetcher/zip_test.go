package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZIP(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestExtractSheet(t *testing.T) {
	zp := writeZIP(t, map[string]string{
		"Online Retail.xlsx":            "xlsx-bytes",
		"README.txt":                    "notes",
		"__MACOSX/._Online Retail.xlsx": "fork",
	})
	dest := t.TempDir()

	got, err := ExtractSheet(zp, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "Online Retail.xlsx"), got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(data))
	assert.NoFileExists(t, filepath.Join(dest, "README.txt"))
}

func TestExtractSheet_NestedCSV(t *testing.T) {
	zp := writeZIP(t, map[string]string{"export/retail.CSV": "a,b\n1,2\n"})
	dest := t.TempDir()

	got, err := ExtractSheet(zp, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "export", "retail.CSV"), got)
}

func TestExtractSheet_NoSheet(t *testing.T) {
	zp := writeZIP(t, map[string]string{"notes.txt": "x", "~$lock.xlsx": "lock"})
	_, err := ExtractSheet(zp, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .xlsx or .csv entry")
}

func TestExtractSheet_Ambiguous(t *testing.T) {
	zp := writeZIP(t, map[string]string{"a.csv": "x", "b.xlsx": "y"})
	_, err := ExtractSheet(zp, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected one spreadsheet, found 2")
}

func TestExtractSheet_ZipSlip(t *testing.T) {
	zp := writeZIP(t, map[string]string{"../escape.csv": "x"})
	_, err := ExtractSheet(zp, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractSheet_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0o644))
	_, err := ExtractSheet(p, t.TempDir())
	require.Error(t, err)
}
