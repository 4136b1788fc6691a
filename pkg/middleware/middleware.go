// Package middleware composes the request pipeline: request tracking,
// panic recovery, CORS, rate limiting, token authentication and
// response encryption. Stages short-circuit with the uniform problem
// envelope; CORS headers are applied before any stage can fail so
// browser callers see failures instead of opaque network errors.
package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loomcast/edgeauth/pkg/problem"
	"github.com/loomcast/edgeauth/pkg/types"
)

// Context key types to avoid string collision in context values
type contextKey string

const (
	RequestIDContextKey contextKey = "requestId"
	StartTimeContextKey contextKey = "startTime"
	ClaimsContextKey    contextKey = "claims"
	TokenContextKey     contextKey = "token"
)

// ClaimsFromContext returns the verified session claims placed by the
// auth middleware.
func ClaimsFromContext(ctx context.Context) (*types.SessionClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*types.SessionClaims)
	return claims, ok
}

// TokenFromContext returns the raw verified bearer token.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenContextKey).(string)
	return token, ok
}

// RequestIDFromContext returns the request identifier.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// RequestID assigns each request an identifier (honoring an inbound
// X-Request-Id from the edge proxy) and records the start time.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		ctx = context.WithValue(ctx, StartTimeContextKey, time.Now())

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger emits one structured log line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		startTime, _ := r.Context().Value(StartTimeContextKey).(time.Time)
		slog.Info("Request handled",
			slog.String("requestId", RequestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("sourceIp", ClientIP(r)),
			slog.Int("status", recorder.status),
			slog.Duration("duration", time.Since(startTime)),
		)
	})
}

// Recoverer converts panics into the uniform problem envelope so no
// stack trace ever reaches a caller.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Panic while handling request",
					slog.String("requestId", RequestIDFromContext(r.Context())),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				)
				problem.Internal(r.URL.Path).Write(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the caller's address, honoring the edge proxy's
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
