package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// maxEntryBytes caps how much a single archive entry may expand to.
const maxEntryBytes = 1 << 30

// sheetExts are the entry extensions ExtractSheet accepts.
var sheetExts = map[string]bool{".xlsx": true, ".csv": true}

// ExtractSheet unpacks the one spreadsheet (.xlsx or .csv) inside a ZIP
// archive into destDir and returns its path. Directories, macOS resource
// forks and other files are ignored. It fails when the archive holds no
// spreadsheet or more than one.
func ExtractSheet(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var sheets []*zip.File
	for _, f := range r.File {
		if isSheetEntry(f) {
			sheets = append(sheets, f)
		}
	}

	switch len(sheets) {
	case 0:
		return "", eris.Errorf("zip: no .xlsx or .csv entry in %s", filepath.Base(zipPath))
	case 1:
		return extractZIPEntry(sheets[0], destDir)
	default:
		names := make([]string, len(sheets))
		for i, f := range sheets {
			names[i] = f.Name
		}
		return "", eris.Errorf("zip: expected one spreadsheet, found %d: %v", len(sheets), names)
	}
}

func isSheetEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
		return false
	}
	base := path.Base(f.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return sheetExts[strings.ToLower(path.Ext(base))]
}

// extractZIPEntry writes f under destDir and returns the written path.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	if n > maxEntryBytes {
		return "", eris.Errorf("zip: entry %q exceeds %d bytes", f.Name, int64(maxEntryBytes))
	}

	return destPath, nil
}
