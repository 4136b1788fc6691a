package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/loomcast/edgeauth/pkg/handler"
)

// responseCapture collects the routed response so it can be translated
// back into an API Gateway proxy response.
type responseCapture struct {
	status  int
	headers http.Header
	body    bytes.Buffer
}

func newResponseCapture() *responseCapture {
	return &responseCapture{status: http.StatusOK, headers: make(http.Header)}
}

func (c *responseCapture) Header() http.Header         { return c.headers }
func (c *responseCapture) WriteHeader(status int)      { c.status = status }
func (c *responseCapture) Write(b []byte) (int, error) { return c.body.Write(b) }

// newProxyHandler adapts API Gateway proxy events onto the HTTP routes
// shared with the standalone server.
func newProxyHandler(routes http.Handler) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		req, err := http.NewRequestWithContext(ctx, event.HTTPMethod, event.Path, strings.NewReader(event.Body))
		if err != nil {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to build request from event: %w", err)
		}

		// API Gateway mirrors every header in both maps; taking both
		// would duplicate each value.
		if len(event.MultiValueHeaders) > 0 {
			for k, values := range event.MultiValueHeaders {
				for _, v := range values {
					req.Header.Add(k, v)
				}
			}
		} else {
			for k, v := range event.Headers {
				req.Header.Set(k, v)
			}
		}

		q := req.URL.Query()
		for k, v := range event.QueryStringParameters {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()

		if ip := event.RequestContext.Identity.SourceIP; ip != "" && req.Header.Get("X-Forwarded-For") == "" {
			req.Header.Set("X-Forwarded-For", ip)
		}

		capture := newResponseCapture()
		routes.ServeHTTP(capture, req)

		headers := make(map[string]string, len(capture.headers))
		for k, values := range capture.headers {
			if len(values) > 0 {
				headers[k] = values[0]
			}
		}

		return events.APIGatewayProxyResponse{
			StatusCode: capture.status,
			Headers:    headers,
			Body:       capture.body.String(),
		}, nil
	}
}

func main() {
	bootstrap, err := handler.NewBootstrap()
	if err != nil {
		slog.Error("Failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}

	lambda.Start(newProxyHandler(bootstrap.Handler.Routes()))
}
