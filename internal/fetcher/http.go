package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/retail-insights/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// PerHostRate limits requests per second to any single host.
	PerHostRate rate.Limit
}

// HTTPFetcher implements Fetcher using net/http with retry and per-host rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute // spreadsheets are large
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "retail-insights/1.0"
	}
	if opts.PerHostRate == 0 {
		opts.PerHostRate = 2
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.LogRetries("fetcher", "download")
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// IsRemote reports whether location is an http(s) URL rather than a local path.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.PerHostRate, 1)
		f.limiters[host] = lim
	}
	return lim
}

// get performs a GET with retries. Any status other than 200 or 304 becomes a
// resilience.StatusError, retried when the status is transient.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	lim := f.limiterFor(rawURL)

	return resilience.Retry(ctx, f.opts.Retry, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "get %s", rawURL)
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotModified {
			return resp, nil
		}
		_ = resp.Body.Close()
		return nil, &resilience.StatusError{Status: resp.StatusCode, URL: rawURL}
	})
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into path. The ETag of the last download is
// kept next to the file and sent as If-None-Match; a 304 leaves the file alone.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (bool, error) {
	etagPath := path + ".etag"

	header := http.Header{}
	if _, err := os.Stat(path); err == nil {
		if etag, err := os.ReadFile(etagPath); err == nil && len(etag) > 0 {
			header.Set("If-None-Match", strings.TrimSpace(string(etag)))
		}
	}

	resp, err := f.get(ctx, rawURL, header)
	if err != nil {
		return false, eris.Wrap(err, "download to file")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified {
		zap.L().Debug("fetcher: cached copy is current", zap.String("url", rawURL), zap.String("path", path))
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, eris.Wrap(err, "create cache dir")
	}

	// Write to a temp file first so a failed transfer never replaces a good copy.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return false, eris.Wrap(err, "create temp file")
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return false, eris.Wrap(copyErr, "write file")
		}
		return false, eris.Wrap(closeErr, "close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return false, eris.Wrap(err, "rename file")
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		if err := os.WriteFile(etagPath, []byte(etag), 0o644); err != nil {
			zap.L().Warn("fetcher: could not persist etag", zap.String("path", etagPath), zap.Error(err))
		}
	} else {
		_ = os.Remove(etagPath)
	}

	zap.L().Info("fetcher: downloaded",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return true, nil
}
