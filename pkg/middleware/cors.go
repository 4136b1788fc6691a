package middleware

import (
	"net/http"
	"strconv"

	"github.com/loomcast/edgeauth/pkg/config"
	"github.com/loomcast/edgeauth/pkg/cors"
)

// TenantHeader names the tenant whose origin list narrows the platform
// allow-list for this request.
const TenantHeader = "X-Loomcast-Tenant"

const (
	allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders = "Authorization, Content-Type, X-Request-Id, " + TenantHeader
)

// CORS resolves the origin policy for every request and answers
// preflights. It runs outermost so the headers are present on every
// response, including error envelopes produced by later stages.
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	resolver := cors.NewResolver(cfg.PlatformOrigins(), cfg.IsProduction())

	maxAge := 86400
	if cfg.Cors != nil && cfg.Cors.MaxAge > 0 {
		maxAge = cfg.Cors.MaxAge
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			// Preflights are answered as credentialed so the actual
			// request may carry cookies; actual requests are
			// credentialed when they present a credential.
			credentials := preflight ||
				r.Header.Get("Cookie") != "" ||
				r.Header.Get("Authorization") != ""

			tenantOrigins := cfg.TenantOriginsFor(r.Header.Get(TenantHeader))
			policy := resolver.Resolve(origin, credentials, tenantOrigins)

			if policy.AllowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", policy.AllowOrigin)
				if policy.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if policy.AllowOrigin != cors.Wildcard {
					w.Header().Add("Vary", "Origin")
				}
			}

			if preflight {
				w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
