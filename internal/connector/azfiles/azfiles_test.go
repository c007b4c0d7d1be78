package azfiles

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/opsrelay/relay-core/internal/coded"
)

// recordedRequest captures the parts of a request the tests assert on.
type recordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// stubFileService records requests and answers with canned statuses.
type stubFileService struct {
	mu       sync.Mutex
	requests []recordedRequest
	// status overrides keyed by path; default is 201.
	statuses map[string]int
}

func (s *stubFileService) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		Method:  req.Method,
		Path:    req.URL.Path,
		Query:   req.URL.RawQuery,
		Headers: req.Header.Clone(),
		Body:    body,
	})
	status := 201
	if s.statuses != nil {
		if st, ok := s.statuses[req.URL.Path]; ok {
			status = st
		}
	}
	s.mu.Unlock()

	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func (s *stubFileService) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func newTestShare(t *testing.T, stub *stubFileService, chunkSize int) *Share {
	t.Helper()
	share, err := New(&Config{
		Account:    "acct",
		AccountKey: base64.StdEncoding.EncodeToString([]byte("test-key")),
		Share:      "backups",
		ChunkSize:  chunkSize,
		BaseURL:    "http://files.local",
		Transport:  stub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return share
}

func TestEnsureDirectoryCreatesEachSegmentOnce(t *testing.T) {
	stub := &stubFileService{}
	share := newTestShare(t, stub, 0)
	ctx := context.Background()

	if err := share.EnsureDirectory(ctx, "reports/2026/08"); err != nil {
		t.Fatalf("EnsureDirectory: %v", err)
	}
	// Second call for an overlapping tree must hit the memo, not the API.
	if err := share.EnsureDirectory(ctx, "reports/2026/09"); err != nil {
		t.Fatalf("EnsureDirectory second call: %v", err)
	}

	reqs := stub.recorded()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 directory requests, got %d", len(reqs))
	}
	wantPaths := []string{
		"/backups/reports",
		"/backups/reports/2026",
		"/backups/reports/2026/08",
		"/backups/reports/2026/09",
	}
	for i, want := range wantPaths {
		if reqs[i].Path != want {
			t.Errorf("request %d path = %q, want %q", i, reqs[i].Path, want)
		}
		if reqs[i].Query != "restype=directory" {
			t.Errorf("request %d query = %q, want restype=directory", i, reqs[i].Query)
		}
	}
}

func TestEnsureDirectoryTreatsConflictAsSuccess(t *testing.T) {
	stub := &stubFileService{statuses: map[string]int{"/backups/existing": 409}}
	share := newTestShare(t, stub, 0)

	if err := share.EnsureDirectory(context.Background(), "existing"); err != nil {
		t.Fatalf("EnsureDirectory on existing dir: %v", err)
	}
	// Memoized after the 409 as well.
	if err := share.EnsureDirectory(context.Background(), "existing"); err != nil {
		t.Fatalf("EnsureDirectory repeat: %v", err)
	}
	if got := len(stub.recorded()); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestUploadChunksLargeFiles(t *testing.T) {
	stub := &stubFileService{}
	share := newTestShare(t, stub, 8)

	content := "abcdefghijklmnopqrst" // 20 bytes, chunk size 8 -> 8+8+4
	err := share.Upload(context.Background(), "docs/report.pdf", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	reqs := stub.recorded()
	if len(reqs) != 4 {
		t.Fatalf("expected create + 3 range requests, got %d", len(reqs))
	}

	create := reqs[0]
	if create.Headers.Get("x-ms-type") != "file" {
		t.Errorf("create x-ms-type = %q, want file", create.Headers.Get("x-ms-type"))
	}
	if create.Headers.Get("x-ms-content-length") != "20" {
		t.Errorf("create x-ms-content-length = %q, want 20", create.Headers.Get("x-ms-content-length"))
	}

	wantRanges := []string{"bytes=0-7", "bytes=8-15", "bytes=16-19"}
	var got strings.Builder
	for i, r := range reqs[1:] {
		if r.Query != "comp=range" {
			t.Errorf("range request %d query = %q, want comp=range", i, r.Query)
		}
		if r.Headers.Get("x-ms-write") != "update" {
			t.Errorf("range request %d x-ms-write = %q, want update", i, r.Headers.Get("x-ms-write"))
		}
		if r.Headers.Get("x-ms-range") != wantRanges[i] {
			t.Errorf("range request %d x-ms-range = %q, want %q", i, r.Headers.Get("x-ms-range"), wantRanges[i])
		}
		got.Write(r.Body)
	}
	if got.String() != content {
		t.Errorf("reassembled upload = %q, want %q", got.String(), content)
	}
}

func TestUploadZeroByteFileSkipsRanges(t *testing.T) {
	stub := &stubFileService{}
	share := newTestShare(t, stub, 0)

	if err := share.Upload(context.Background(), "empty.txt", strings.NewReader(""), 0); err != nil {
		t.Fatalf("Upload zero-byte: %v", err)
	}
	reqs := stub.recorded()
	if len(reqs) != 1 {
		t.Fatalf("expected only the create request, got %d", len(reqs))
	}
	if reqs[0].Headers.Get("x-ms-content-length") != "0" {
		t.Errorf("x-ms-content-length = %q, want 0", reqs[0].Headers.Get("x-ms-content-length"))
	}
}

func TestRequestsAreSharedKeySigned(t *testing.T) {
	stub := &stubFileService{}
	share := newTestShare(t, stub, 0)

	if err := share.EnsureDirectory(context.Background(), "signed"); err != nil {
		t.Fatalf("EnsureDirectory: %v", err)
	}
	reqs := stub.recorded()
	auth := reqs[0].Headers.Get("Authorization")
	if !strings.HasPrefix(auth, "SharedKey acct:") {
		t.Errorf("Authorization = %q, want SharedKey acct:<signature>", auth)
	}
	if reqs[0].Headers.Get("x-ms-date") == "" {
		t.Error("x-ms-date header missing")
	}
	if reqs[0].Headers.Get("x-ms-version") != apiVersion {
		t.Errorf("x-ms-version = %q, want %q", reqs[0].Headers.Get("x-ms-version"), apiVersion)
	}
}

func TestUploadSurfacesAuthFailure(t *testing.T) {
	stub := &stubFileService{statuses: map[string]int{"/backups/denied.txt": 403}}
	share := newTestShare(t, stub, 0)

	err := share.Upload(context.Background(), "denied.txt", strings.NewReader("x"), 1)
	if err == nil {
		t.Fatal("expected error for 403")
	}
	if coded.CodeOf(err) != coded.CodeAuthInvalid {
		t.Errorf("error code = %q, want %q", coded.CodeOf(err), coded.CodeAuthInvalid)
	}
}
