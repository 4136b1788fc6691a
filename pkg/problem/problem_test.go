package problem_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loomcast/edgeauth/pkg/problem"
	"github.com/loomcast/edgeauth/pkg/signer"
	"github.com/loomcast/edgeauth/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	w := httptest.NewRecorder()
	problem.Unauthorized("/v1/session").Write(w)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, problem.ContentType, w.Header().Get("Content-Type"))

	var p problem.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "Unauthorized", p.Title)
	assert.Equal(t, "invalid or expired token", p.Detail)
	assert.Equal(t, "/v1/session", p.Instance)
}

func TestWriteRetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	problem.TooManyRequests("/v1/session", 30).Write(w)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var p problem.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 30, p.RetryAfter)
	require.NotNil(t, p.Retryable)
	assert.True(t, *p.Retryable)
}

func TestFromNarrowsErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid token", err: validator.ErrInvalidToken, wantStatus: http.StatusUnauthorized},
		{name: "wrapped invalid token", err: fmt.Errorf("auth: %w", validator.ErrInvalidToken), wantStatus: http.StatusUnauthorized},
		{name: "missing key material", err: signer.ErrNoKeyMaterial, wantStatus: http.StatusInternalServerError},
		{name: "invalid key material", err: signer.ErrInvalidKeyMaterial, wantStatus: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := problem.From(tt.err, "/x")
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, "/x", p.Instance)
		})
	}
}

func TestInternalLeaksNothing(t *testing.T) {
	p := problem.From(errors.New("pq: connection string invalid at host=10.0.0.3"), "/x")
	assert.NotContains(t, p.Detail, "10.0.0.3")
	assert.Equal(t, "an internal error occurred, contact your administrator", p.Detail)
}
