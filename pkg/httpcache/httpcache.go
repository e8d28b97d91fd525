// Package httpcache provides cached, retried and per-host rate-limited HTTP GETs.
package httpcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"

	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
)

// UserAgent identifies fediscan to instance operators.
const UserAgent = "fediscan/1.0 (+https://github.com/codeGROOVE-dev/fediscan)"

// maxBody bounds how much of a response is read.
const maxBody = 2 << 20

// Cacher allows external cache implementations for sharing across packages.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Cache wraps sfcache for HTTP response caching.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// New creates a new Cache with disk persistence at ~/.cache/fediscan.
func New(ttl time.Duration) (*Cache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewWithPath(ttl, filepath.Join(cacheDir, "fediscan"))
}

// NewNull creates a Cache with no persistence.
func NewNull() *Cache {
	tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte]())
	if err != nil {
		panic("sfcache.NewTiered with null store: " + err.Error())
	}
	return &Cache{TieredCache: tc, ttl: 0}
}

// NewWithPath creates a new Cache with disk persistence at the specified path.
func NewWithPath(ttl time.Duration, cachePath string) (*Cache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	persist, err := localfs.New[string, []byte]("fediscan", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// TTL returns the default TTL for cache entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// URLToKey converts a URL to a cache key using SHA256 hash.
func URLToKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(hash[:])
}

// HTTPError represents a non-200 HTTP response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Fetcher performs GETs through a Cacher.
type Fetcher struct {
	cache   Cacher
	client  *http.Client
	limiter *hostLimiter
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithHTTPClient sets the HTTP client used on cache misses.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithRateInterval sets the minimum spacing between requests to one host.
// Zero disables rate limiting.
func WithRateInterval(d time.Duration) Option {
	return func(f *Fetcher) { f.limiter = newHostLimiter(d) }
}

// WithTimeout bounds each fetch, retries included.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// NewFetcher creates a Fetcher. A nil cache disables caching.
func NewFetcher(cache Cacher, opts ...Option) *Fetcher {
	f := &Fetcher{
		cache:   cache,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: newHostLimiter(time.Second),
		logger:  slog.Default(),
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches rawURL with the given Accept header. Non-200 responses are returned as
// *HTTPError and cached like bodies, as are transport failures, so a failing host is
// not hammered. Cancellations and deadlines are returned but never cached.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	if f.cache == nil {
		return f.fetch(ctx, req)
	}

	var wasFetched bool
	data, err := f.cache.GetSet(ctx, URLToKey(accept+"|"+rawURL), func(ctx context.Context) ([]byte, error) {
		wasFetched = true
		f.logger.DebugContext(ctx, "cache miss", "url", rawURL)
		body, fetchErr := f.fetch(ctx, req)
		if fetchErr != nil {
			if canceled(ctx, fetchErr) {
				return nil, fetchErr
			}
			var httpErr *HTTPError
			if errors.As(fetchErr, &httpErr) {
				return fmt.Appendf(nil, "ERROR:%d", httpErr.StatusCode), nil
			}
			return fmt.Appendf(nil, "NETERR:%s", fetchErr.Error()), nil
		}
		return body, nil
	}, f.cache.TTL())
	if err != nil {
		return nil, err
	}
	if !wasFetched {
		metrics.HTTPRequests.WithLabelValues("cache_hit").Inc()
		f.logger.DebugContext(ctx, "cache hit", "url", rawURL)
	}

	s := string(data)
	if errCode, found := strings.CutPrefix(s, "ERROR:"); found {
		code, _ := strconv.Atoi(errCode) //nolint:errcheck // 0 is acceptable default
		return nil, &HTTPError{StatusCode: code, URL: rawURL}
	}
	if errMsg, found := strings.CutPrefix(s, "NETERR:"); found {
		return nil, fmt.Errorf("cached network error: %s", errMsg)
	}
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, req *http.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	body, err := retry.DoWithData(
		func() ([]byte, error) {
			if err := f.limiter.Wait(ctx, req.URL.Host); err != nil {
				return nil, err
			}

			resp, err := f.client.Do(req.WithContext(ctx))
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			if resp.StatusCode != http.StatusOK {
				return nil, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
			}

			return io.ReadAll(io.LimitReader(resp.Body, maxBody))
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("retrying HTTP request", "attempt", n+1, "url", req.URL.String(), "error", err)
		}),
	)
	metrics.HTTPRequestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.HTTPRequests.WithLabelValues("fetched").Inc()
	case StatusCode(err) != 0:
		metrics.HTTPRequests.WithLabelValues("http_error").Inc()
	default:
		metrics.HTTPRequests.WithLabelValues("net_error").Inc()
	}
	return body, err
}

// canceled reports whether err came from ctx ending rather than from the host.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isRetryableError returns true for transient errors that should be retried.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false // 4xx errors (except 429) are permanent
		}
	}
	// Network errors, timeouts, etc. are retryable
	return true
}
