// Package extract locates a candidate bearer token on an inbound
// request. Browser clients carry the token in a non-scriptable cookie;
// service-to-service callers use the Authorization header.
package extract

import (
	"net/http"
	"strings"
)

// CookieName is the session cookie carrying the token for browser
// clients.
const CookieName = "auth_token"

// Token returns the candidate token from the request, or the empty
// string when none is present. Callers must treat an empty result as
// "unauthenticated", never as an empty-string token.
//
// Priority: the auth_token cookie first (matched by literal prefix in
// the raw Cookie header), then "Authorization: Bearer".
func Token(r *http.Request) string {
	for _, header := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(header, ";") {
			part = strings.TrimSpace(part)
			if value, ok := strings.CutPrefix(part, CookieName+"="); ok && value != "" {
				return value
			}
		}
	}

	auth := r.Header.Get("Authorization")
	if value, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(value)
	}

	return ""
}
