package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsrelay/relay-core/internal/coded"
)

// ClientConfig configures the HTTP client behavior.
type ClientConfig struct {
	// BaseURL is the base URL for all requests.
	BaseURL string

	// Auth configures authentication.
	Auth AuthConfig

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for failed requests (default: 3).
	MaxRetries int

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Headers to add to all requests.
	Headers map[string]string

	// UserAgent string (default: "relay-core/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RateLimit:  10.0,
		RateBurst:  5,
		UserAgent:  "relay-core/1.0",
		Headers:    make(map[string]string),
	}
}

// Client is a rate-limited, retry-capable HTTP client shared by the REST
// connectors. Retries apply only to 429 and 5xx responses, with exponential
// backoff between attempts; a Retry-After header on the response overrides
// the computed backoff.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "relay-core/1.0"
	}
	if config.Auth == nil {
		config.Auth = NoAuth{}
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
}

// Request represents an HTTP request to be made.
type Request struct {
	Method  string
	Path    string
	// URL overrides BaseURL+Path when a server hands back a full
	// continuation URL (OData nextLink, async operation polling).
	URL     string
	Query   url.Values
	Headers map[string]string
	Body    io.Reader
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return coded.Wrap(coded.CodeBadPayload, false, err)
	}
	return nil
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do executes a request with rate limiting and retry.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		if httpErr, ok := err.(*HTTPError); ok && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	fullURL := req.URL
	if fullURL == "" {
		fullURL = c.config.BaseURL
		if req.Path != "" {
			fullURL = strings.TrimSuffix(fullURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
		}
	}
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if err := c.config.Auth.Apply(httpReq); err != nil {
		return nil, coded.Wrap(coded.CodeAuthInvalid, false, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	if resp.StatusCode >= 400 {
		return response, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: retryAfter(resp.Header),
		}
	}

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// GetURL performs a GET against a full URL (continuation links).
func (c *Client) GetURL(ctx context.Context, fullURL string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		URL:    fullURL,
	})
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	bodyReader, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   bodyReader,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
}

// Put performs a PUT request with JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	bodyReader, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   bodyReader,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
}

// Patch performs a PATCH request with JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	bodyReader, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   path,
		Body:   bodyReader,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   path,
	})
}

// Stream performs a GET and hands back the raw body reader. The caller owns
// the reader and must close it. Retries are not applied: a failed stream is
// the caller's retry unit (the transfer engine retries whole files).
func (c *Client) Stream(ctx context.Context, req *Request) (io.ReadCloser, int64, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := req.URL
	if fullURL == "" {
		fullURL = strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if err := c.config.Auth.Apply(httpReq); err != nil {
		return nil, 0, coded.Wrap(coded.CodeAuthInvalid, false, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, 0, ClassifyStatus(resp.StatusCode, string(body))
	}
	return resp.Body, resp.ContentLength, nil
}

func jsonBody(body any) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return strings.NewReader(string(data)), nil
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Message    string
	// RetryAfter is the server-requested wait before the next attempt,
	// zero when the response carried no usable Retry-After header.
	RetryAfter time.Duration
}

// retryAfter parses a Retry-After header, delay-seconds or HTTP-date form.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server error.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.IsRateLimited() || httpErr.IsServerError()
	}
	return coded.IsRetryable(err)
}

// ClassifyStatus maps an HTTP status to a coded error. Connectors use this
// when translating vendor responses into the engine-facing error model.
func ClassifyStatus(status int, message string) error {
	switch {
	case status == 401 || status == 403:
		return coded.Errorf(coded.CodeAuthInvalid, false, "HTTP %d: %s", status, message)
	case status == 404:
		return coded.Errorf(coded.CodeNotFound, false, "HTTP %d: %s", status, message)
	case status == 409:
		return coded.Errorf(coded.CodeConflict, false, "HTTP %d: %s", status, message)
	case status == 410:
		return coded.Errorf(coded.CodeResyncRequired, false, "HTTP %d: %s", status, message)
	case status == 429:
		return coded.Errorf(coded.CodeRateLimited, true, "HTTP %d: %s", status, message)
	case status >= 500:
		return coded.Errorf(coded.CodeEndpointUnreachable, true, "HTTP %d: %s", status, message)
	default:
		return &HTTPError{StatusCode: status, Message: message}
	}
}
