package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/opsrelay/relay-core/internal/coded"
)

// scriptedTransport replays a fixed sequence of responses in-process.
type scriptedTransport struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	status int
	body   string
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := t.calls
	if idx >= len(t.responses) {
		idx = len(t.responses) - 1
	}
	t.calls++
	r := t.responses[idx]
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Header:     http.Header{},
		Request:    req,
	}, nil
}

func newTestClient(transport http.RoundTripper) *Client {
	return NewClient(&ClientConfig{
		BaseURL:    "http://stub.local",
		MaxRetries: 2,
		RateLimit:  1000,
		RateBurst:  1000,
		Transport:  transport,
	})
}

func TestClient_RetriesServerErrors(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{status: 500, body: `{"error":"boom"}`},
		{status: 503, body: `{"error":"busy"}`},
		{status: 200, body: `{"ok":true}`},
	}}
	client := newTestClient(transport)

	resp, err := client.Get(context.Background(), "/thing", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %d", resp.StatusCode)
	}
	if transport.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.calls)
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{status: 404, body: `{"error":"missing"}`},
	}}
	client := newTestClient(transport)

	_, err := client.Get(context.Background(), "/thing", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected HTTP 404, got %v", err)
	}
	if transport.calls != 1 {
		t.Fatalf("expected single attempt, got %d", transport.calls)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{status: 429, body: `{"error":"slow down"}`},
		{status: 200, body: `{}`},
	}}
	client := newTestClient(transport)

	if _, err := client.Get(context.Background(), "/thing", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if transport.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", transport.calls)
	}
}

func TestRetryAfterHeaderParsing(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"0", 0},
		{"garbage", 0},
		{"-5", 0},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.value != "" {
			h.Set("Retry-After", tc.value)
		}
		if got := retryAfter(h); got != tc.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}

	// HTTP-date form yields roughly the remaining wait.
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(3*time.Second).UTC().Format(http.TimeFormat))
	if got := retryAfter(h); got <= 0 || got > 3*time.Second {
		t.Errorf("retryAfter(date) = %v, want within (0, 3s]", got)
	}
}

func TestClient_HonorsRetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "1")
	calls := 0
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return &http.Response{
				StatusCode: 429,
				Body:       io.NopCloser(strings.NewReader(`{"error":"slow down"}`)),
				Header:     header,
			}, nil
		}
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader("{}")),
			Header:     http.Header{},
		}, nil
	})
	client := newTestClient(transport)

	start := time.Now()
	if _, err := client.Get(context.Background(), "/thing", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	// The first backoff would be 100ms; the header stretches it to 1s.
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("retried after %v, want the server-requested 1s", elapsed)
	}
}

func TestClient_ExhaustsRetries(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{status: 500, body: `{"error":"boom"}`},
	}}
	client := newTestClient(transport)

	_, err := client.Get(context.Background(), "/thing", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
	// MaxRetries=2 means 3 attempts total.
	if transport.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.calls)
	}
}

func TestClient_AppliesAuthAndHeaders(t *testing.T) {
	var seen *http.Request
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = req
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader("{}")),
			Header:     http.Header{},
		}, nil
	})

	client := NewClient(&ClientConfig{
		BaseURL:   "http://stub.local",
		Auth:      BearerToken{Token: "tok-123"},
		Headers:   map[string]string{"X-Env": "test"},
		RateLimit: 1000,
		RateBurst: 1000,
		Transport: transport,
	})

	if _, err := client.Get(context.Background(), "/probe", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := seen.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := seen.Header.Get("X-Env"); got != "test" {
		t.Fatalf("X-Env = %q", got)
	}
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		code      string
		retryable bool
	}{
		{401, coded.CodeAuthInvalid, false},
		{403, coded.CodeAuthInvalid, false},
		{404, coded.CodeNotFound, false},
		{409, coded.CodeConflict, false},
		{410, coded.CodeResyncRequired, false},
		{429, coded.CodeRateLimited, true},
		{500, coded.CodeEndpointUnreachable, true},
		{503, coded.CodeEndpointUnreachable, true},
	}

	for _, tc := range cases {
		err := ClassifyStatus(tc.status, "detail")
		if got := coded.CodeOf(err); got != tc.code {
			t.Errorf("status %d: code = %s, want %s", tc.status, got, tc.code)
		}
		if got := coded.IsRetryable(err); got != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, got, tc.retryable)
		}
	}

	// Unmapped 4xx stays a plain HTTPError.
	err := ClassifyStatus(418, "teapot")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError for 418, got %v", err)
	}
}
