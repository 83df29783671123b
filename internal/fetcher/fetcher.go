package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path unless the server reports the
	// cached copy is current. Returns whether the file was (re)written.
	DownloadToFile(ctx context.Context, url string, path string) (bool, error)
}
