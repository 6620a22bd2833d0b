package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientUIDHeader carries the caller identity between services
const ClientUIDHeader = "X-Client-UID"

// Logger interface for HTTP client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// HTTPClient wraps http.Client with context-aware helpers.
// It extracts metadata from context and adds the matching headers.
type HTTPClient struct {
	client *http.Client
	logger Logger
}

// NewHTTPClient creates a new HTTP client wrapper
func NewHTTPClient(client *http.Client, logger Logger) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		client: client,
		logger: logger,
	}
}

// DoRequest creates and executes an HTTP request, extracting metadata from context
func (c *HTTPClient) DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	if uid, ok := GetClientUID(ctx); ok {
		req.Header.Set(ClientUIDHeader, uid)
	}

	return c.client.Do(req)
}

// ProbeResult is what a HEAD-or-GET probe learned about a URL
type ProbeResult struct {
	StatusCode  int
	ContentType string
}

// Probe issues HEAD, retrying with GET when the server answers 404 or 405.
// Bodies are discarded.
func (c *HTTPClient) Probe(ctx context.Context, url string, timeout time.Duration) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.probeOnce(ctx, http.MethodHead, url)
	if err != nil {
		return res, err
	}
	if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusMethodNotAllowed {
		c.logger.Debug("HEAD rejected, retrying with GET", "url", url, "status", res.StatusCode)
		return c.probeOnce(ctx, http.MethodGet, url)
	}
	return res, nil
}

func (c *HTTPClient) probeOnce(ctx context.Context, method, url string) (ProbeResult, error) {
	resp, err := c.DoRequest(ctx, method, url, nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	return ProbeResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
