// Package source fetches raw collection records from council upstreams.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"bin-kiosk/pkg/collection"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 5 << 20

// Adapter fetches and normalizes records from one upstream source.
type Adapter interface {
	// Fetch performs a single upstream request. It does not retry.
	Fetch(ctx context.Context) ([]collection.RawRecord, error)
	// Identity is a stable string naming the configured source, used for cache keys.
	Identity() string
	// Describe is a short human-readable source label.
	Describe() string
}

var (
	_ Adapter = (*CalendarAdapter)(nil)
	_ Adapter = (*ScrapeAdapter)(nil)
)

// get issues one GET and returns the body of a 200 response.
func get(client *http.Client, logger *slog.Logger, req *http.Request) ([]byte, error) {
	target := req.URL.Redacted()
	logger.Info("HTTP request starting",
		"method", req.Method,
		"url", target)

	startTime := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		logger.Warn("HTTP request failed",
			"url", target,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &collection.FetchError{URL: target, Reason: "request failed", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	logger.Info("HTTP request completed",
		"url", target,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"content_length", resp.ContentLength)

	if resp.StatusCode != http.StatusOK {
		return nil, &collection.FetchError{URL: target, StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &collection.FetchError{URL: target, Reason: "read body", Err: err}
	}
	return body, nil
}

func newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}
