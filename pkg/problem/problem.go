// Package problem renders every HTTP-facing failure as one uniform
// RFC 7807 envelope. Internal errors keep their diagnostic detail for
// logs; the narrowing functions here map them to the deliberately
// vague public messages.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loomcast/edgeauth/pkg/signer"
	"github.com/loomcast/edgeauth/pkg/validator"
)

// ContentType is the media type of the error envelope.
const ContentType = "application/problem+json"

const typeBase = "https://loomcast.live/problems/"

// Problem is the RFC 7807 error envelope.
type Problem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Retryable  *bool  `json:"retryable,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Unauthorized is the single outcome for every token verification
// failure; the cause is deliberately not disclosed.
func Unauthorized(instance string) *Problem {
	return &Problem{
		Type:     typeBase + "invalid-token",
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   "invalid or expired token",
		Instance: instance,
	}
}

// BadRequest reports a malformed request body or parameters.
func BadRequest(detail, instance string) *Problem {
	return &Problem{
		Type:     typeBase + "bad-request",
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
	}
}

// Forbidden reports a request that is authenticated but not permitted.
func Forbidden(instance string) *Problem {
	return &Problem{
		Type:     typeBase + "forbidden",
		Title:    "Forbidden",
		Status:   http.StatusForbidden,
		Instance: instance,
	}
}

// NotFound reports an unknown route.
func NotFound(instance string) *Problem {
	return &Problem{
		Type:     typeBase + "not-found",
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Instance: instance,
	}
}

// MethodNotAllowed reports a known route hit with the wrong verb.
func MethodNotAllowed(instance string) *Problem {
	return &Problem{
		Type:     typeBase + "method-not-allowed",
		Title:    "Method Not Allowed",
		Status:   http.StatusMethodNotAllowed,
		Instance: instance,
	}
}

// TooManyRequests reports a rate-limited client. retryAfter is in
// seconds and is also rendered as the Retry-After header.
func TooManyRequests(instance string, retryAfter int) *Problem {
	return &Problem{
		Type:       typeBase + "rate-limited",
		Title:      "Too Many Requests",
		Status:     http.StatusTooManyRequests,
		Instance:   instance,
		RetryAfter: retryAfter,
		Retryable:  boolPtr(true),
	}
}

// Internal reports a platform fault. No detail beyond "contact
// administrator" is leaked regardless of the underlying cause.
func Internal(instance string) *Problem {
	return &Problem{
		Type:      typeBase + "internal",
		Title:     "Internal Server Error",
		Status:    http.StatusInternalServerError,
		Detail:    "an internal error occurred, contact your administrator",
		Instance:  instance,
		Retryable: boolPtr(false),
	}
}

// From narrows an internal error to its public envelope.
func From(err error, instance string) *Problem {
	switch {
	case errors.Is(err, validator.ErrInvalidToken):
		return Unauthorized(instance)
	case errors.Is(err, signer.ErrNoKeyMaterial), errors.Is(err, signer.ErrInvalidKeyMaterial):
		// Configuration errors are operator-facing; the envelope stays
		// generic while the log line carries the detail.
		return Internal(instance)
	default:
		return Internal(instance)
	}
}

// Write renders the problem to w with the proper content type.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	if p.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", p.RetryAfter))
	}
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("Failed to encode problem response", "error", err)
	}
}
