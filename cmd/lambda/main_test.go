package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyHandlerPrefersMultiValueHeaders(t *testing.T) {
	var got http.Header
	routes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	})

	proxy := newProxyHandler(routes)
	resp, err := proxy(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/v1/session",
		Headers: map[string]string{
			"Authorization": "Bearer abc",
			"Cookie":        "auth_token=abc",
		},
		MultiValueHeaders: map[string][]string{
			"Authorization": {"Bearer abc"},
			"Cookie":        {"auth_token=abc"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Each header arrives exactly once even though API Gateway mirrors
	// them in both event maps.
	assert.Equal(t, []string{"Bearer abc"}, got.Values("Authorization"))
	assert.Equal(t, []string{"auth_token=abc"}, got.Values("Cookie"))
}

func TestProxyHandlerFallsBackToSingleValueHeaders(t *testing.T) {
	var got http.Header
	routes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	proxy := newProxyHandler(routes)
	_, err := proxy(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/healthz",
		Headers:    map[string]string{"X-Request-Id": "req-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, got.Values("X-Request-Id"))
}

func TestProxyHandlerTranslatesResponse(t *testing.T) {
	routes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":false}`))
	})

	proxy := newProxyHandler(routes)
	resp, err := proxy(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/anything",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, `{"ok":false}`, resp.Body)
}
