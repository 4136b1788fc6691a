package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/loomcast/edgeauth/pkg/extract"
	"github.com/loomcast/edgeauth/pkg/problem"
	"github.com/loomcast/edgeauth/pkg/utils"
	"github.com/loomcast/edgeauth/pkg/validator"
)

// RequireAuth extracts and verifies the bearer token, placing the
// verified claims and the raw token on the request context. A missing
// or invalid token short-circuits with the single 401 outcome.
func RequireAuth(verifier validator.TokenVerifierInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extract.Token(r)
			if token == "" {
				problem.Unauthorized(r.URL.Path).Write(w)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Debug("Request authentication failed",
					slog.String("requestId", RequestIDFromContext(r.Context())),
					slog.String("token", utils.RedactToken(token, 10, 10)),
				)
				problem.From(err, r.URL.Path).Write(w)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
