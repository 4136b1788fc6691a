// Package jwks fetches and caches the issuer's published key set for
// resource servers that are not the issuer. The cache prefers stale
// keys over verification outages: a failed refresh serves the last good
// result, and an empty result simply fails all signature checks rather
// than erroring.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loomcast/edgeauth/pkg/types"
)

const (
	// DiscoveryPath is appended to the issuer origin to build the
	// well-known key set URL.
	DiscoveryPath = "/.well-known/jwks.json"

	// DefaultTTL is the freshness window for a cached key set.
	DefaultTTL = 10 * time.Minute

	// DefaultTimeout bounds a single discovery fetch.
	DefaultTimeout = 5 * time.Second
)

// KeyFetcher retrieves a key set from a discovery URL. Resource servers
// on a private network path can supply their own implementation instead
// of going through the public internet (avoiding self-referential
// loops when the issuer fronts the same edge).
type KeyFetcher interface {
	FetchKeys(ctx context.Context, url string) (*types.JWKS, error)
}

// HTTPFetcher is the default KeyFetcher using plain HTTP GET.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) FetchKeys(ctx context.Context, url string) (*types.JWKS, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close JWKS response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code when fetching JWKS: %d", resp.StatusCode)
	}

	var keySet types.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	return &keySet, nil
}

// Client caches the issuer's key set for the freshness window and
// serves the last good result when a refresh fails. One Client exists
// per process, owned by the bootstrap.
type Client struct {
	url     string
	ttl     time.Duration
	fetcher KeyFetcher

	mu        sync.Mutex
	cached    *types.JWKS
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTimeout bounds each discovery fetch. It applies to the default
// HTTP fetcher only; a custom fetcher manages its own deadlines.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		if f, ok := c.fetcher.(*HTTPFetcher); ok {
			f.Client = &http.Client{Timeout: timeout}
		}
	}
}

// WithFetcher supplies an alternate fetch strategy.
func WithFetcher(f KeyFetcher) Option {
	return func(c *Client) {
		if f != nil {
			c.fetcher = f
		}
	}
}

// NewClient creates a key store client for the given issuer origin.
// Trailing slashes on the issuer are trimmed before the discovery path
// is appended.
func NewClient(issuer string, opts ...Option) *Client {
	c := &Client{
		url:     strings.TrimRight(issuer, "/") + DiscoveryPath,
		ttl:     DefaultTTL,
		fetcher: &HTTPFetcher{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the resolved discovery URL.
func (c *Client) URL() string { return c.url }

// Keys returns the issuer's key set. A cached result younger than the
// freshness window is returned unmodified without touching the network.
// On refresh failure the last good set is served; when no cache exists
// yet an empty set is returned, which correctly fails verification for
// every token rather than erroring.
func (c *Client) Keys(ctx context.Context) *types.JWKS {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		cached := c.cached
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	// Concurrent requests racing on an expired cache each re-fetch on
	// their own; expiry is rare relative to request volume so the
	// duplicate fetches are not worth a single-flight dependency.
	keySet, err := c.fetcher.FetchKeys(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.cached != nil {
			slog.Warn("JWKS refresh failed, serving stale key set",
				slog.String("url", c.url),
				slog.Time("fetchedAt", c.fetchedAt),
				slog.String("error", err.Error()),
			)
			return c.cached
		}

		slog.Error("JWKS fetch failed with no cached key set",
			slog.String("url", c.url),
			slog.String("error", err.Error()),
		)
		return &types.JWKS{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = keySet
	c.fetchedAt = time.Now()
	return keySet
}

// Reset drops the cached key set so the next Keys call re-fetches.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.fetchedAt = time.Time{}
}
