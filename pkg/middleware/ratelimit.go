package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loomcast/edgeauth/pkg/problem"
	"github.com/loomcast/edgeauth/pkg/store"
)

// RateLimit applies a fixed-window per-client limit backed by the
// key-value store. The window is derived from the wall clock so every
// instance sharing the store counts against the same bucket. A store
// failure lets the request through: availability over strictness.
func RateLimit(kv store.Store, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			bucket := now.Unix() / int64(window.Seconds())
			key := fmt.Sprintf("ratelimit:%s:%d", ClientIP(r), bucket)

			count := 0
			if raw, found, err := kv.Get(r.Context(), key); err != nil {
				slog.Warn("Rate limit store read failed, allowing request", "error", err.Error())
			} else if found {
				count, _ = strconv.Atoi(string(raw))
			}

			if count >= limit {
				retryAfter := int(window.Seconds()) - int(now.Unix()%int64(window.Seconds()))
				slog.Warn("Rate limit exceeded",
					slog.String("sourceIp", ClientIP(r)),
					slog.Int("limit", limit),
				)
				problem.TooManyRequests(r.URL.Path, retryAfter).Write(w)
				return
			}

			if err := kv.Put(r.Context(), key, []byte(strconv.Itoa(count+1)), window); err != nil {
				slog.Warn("Rate limit store write failed", "error", err.Error())
			}

			next.ServeHTTP(w, r)
		})
	}
}
