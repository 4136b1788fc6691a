// Package cors computes cross-origin response headers from the
// platform-wide allow-list and an optional tenant-specific list. A
// tenant list only ever narrows the platform list; credentialed
// requests are answered with the literal origin because browsers
// reject a wildcard when credentials are included.
package cors

import (
	"log/slog"
	"net/url"
	"strings"
)

// Wildcard is the literal allow-everything entry.
const Wildcard = "*"

// Policy is the per-request origin decision. An empty AllowOrigin
// means the request origin is not allowed.
type Policy struct {
	AllowOrigin      string
	AllowCredentials bool
}

// Resolver resolves origin policies for one deployment environment.
type Resolver struct {
	platform   []string
	production bool
}

// NewResolver creates a resolver over the platform allow-list. In
// production a missing list denies every cross-origin request; in any
// other environment it falls back to permissive.
func NewResolver(platformAllowList []string, production bool) *Resolver {
	return &Resolver{platform: platformAllowList, production: production}
}

// Resolve computes the policy for a request origin. tenantAllowList,
// when non-nil, narrows the platform list: the origin must be permitted
// by both. credentials reports whether the request carries credentials
// (cookies or an Authorization header).
func (r *Resolver) Resolve(origin string, credentials bool, tenantAllowList []string) Policy {
	if origin == "" {
		return Policy{}
	}

	platform := r.platform
	if len(platform) == 0 {
		if r.production {
			// Fail closed, never open, on missing configuration in
			// production.
			slog.Error("CORS allow-list is not configured in production; denying cross-origin request",
				slog.String("origin", origin))
			return Policy{}
		}
		slog.Debug("CORS allow-list is not configured; defaulting to permissive outside production",
			slog.String("origin", origin))
		platform = []string{Wildcard}
	}

	allowed := matchesList(platform, origin)
	if allowed && tenantAllowList != nil {
		// A tenant may only narrow permitted origins, never add origins
		// the platform forbids.
		allowed = matchesList(tenantAllowList, origin)
	}

	if !allowed && !r.production && isDevelopmentOrigin(origin) {
		// Local development pages (including the "null" origin browsers
		// send for file:// pages) are implicitly allowed outside
		// production.
		allowed = true
	}

	if !allowed {
		return Policy{}
	}

	if credentials {
		// The credentialed-CORS rule rejects a wildcard, so the exact
		// origin is echoed instead.
		return Policy{AllowOrigin: origin, AllowCredentials: true}
	}

	if matchesExactly(platform, Wildcard) && tenantAllowList == nil {
		return Policy{AllowOrigin: Wildcard}
	}
	return Policy{AllowOrigin: origin}
}

// matchesList reports whether origin is permitted by any entry: the
// literal wildcard, a trailing-* prefix pattern, or an exact string.
func matchesList(list []string, origin string) bool {
	for _, entry := range list {
		if entry == Wildcard {
			return true
		}
		if prefix, ok := strings.CutSuffix(entry, "*"); ok {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
			continue
		}
		if entry == origin {
			return true
		}
	}
	return false
}

func matchesExactly(list []string, entry string) bool {
	for _, e := range list {
		if e == entry {
			return true
		}
	}
	return false
}

// isDevelopmentOrigin recognizes localhost, 127.0.0.1 and the literal
// "null" origin.
func isDevelopmentOrigin(origin string) bool {
	if origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
