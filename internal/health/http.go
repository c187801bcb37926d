package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker reports an HTTP endpoint healthy when it answers at all with a
// status below 500. Used for the object storage endpoint, which answers
// anonymous requests with 4xx.
type HTTPChecker struct {
	url    string
	client *http.Client
}

// NewHTTPChecker creates a checker for url.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck issues a HEAD request against the endpoint.
func (h *HTTPChecker) HealthCheck(ctx context.Context) error {
	if h.url == "" {
		return fmt.Errorf("url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}
