package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/loomcast/edgeauth/pkg/problem"
	"github.com/loomcast/edgeauth/pkg/seal"
)

// EncryptedHeader marks a response body as a sealed envelope; its
// absence means plain JSON.
const EncryptedHeader = "X-Encrypted"

// EncryptResponses seals successful JSON responses to the caller's
// verified bearer token. Error responses and responses on
// unauthenticated routes pass through unmodified so the problem
// envelope stays readable.
func EncryptResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := TokenFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		buffer := &bufferedResponse{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(buffer, r)

		if buffer.status >= http.StatusBadRequest || buffer.body.Len() == 0 {
			buffer.flush()
			return
		}

		envelope, err := seal.Encrypt(json.RawMessage(buffer.body.Bytes()), token)
		if err != nil {
			slog.Error("Failed to encrypt response",
				slog.String("requestId", RequestIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
			problem.Internal(r.URL.Path).Write(w)
			return
		}

		w.Header().Set(EncryptedHeader, "true")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Del("Content-Length")
		w.WriteHeader(buffer.status)
		if err := json.NewEncoder(w).Encode(envelope); err != nil {
			slog.Error("Failed to write encrypted response", "error", err)
		}
	})
}

// bufferedResponse captures the handler's output so it can be sealed
// before anything reaches the wire.
type bufferedResponse struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(status int) {
	b.status = status
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

func (b *bufferedResponse) flush() {
	b.ResponseWriter.WriteHeader(b.status)
	if _, err := b.ResponseWriter.Write(b.body.Bytes()); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
