// Package azfiles implements the Azure File Share sink used as the copy
// destination by the transfer engine. It speaks the File service REST API
// directly with SharedKey request signing; uploads are a Create File call
// followed by sequential Put Range chunks.
package azfiles

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

const (
	apiVersion       = "2021-12-02"
	DefaultChunkSize = 4 * 1024 * 1024
)

// Config holds Azure File Share connection settings.
type Config struct {
	Account    string
	AccountKey string // base64-encoded storage account key
	Share      string
	ChunkSize  int
	// BaseURL overrides https://{account}.file.core.windows.net (tests).
	BaseURL   string
	Transport http.RoundTripper
}

// Share is the Azure File Share connector.
type Share struct {
	config     *Config
	httpClient *http.Client
	key        []byte

	dirMu   sync.Mutex
	dirSeen map[string]bool
}

var _ endpoint.Endpoint = (*Share)(nil)

// New creates the connector and decodes the account key.
func New(cfg *Config) (*Share, error) {
	if cfg.Account == "" || cfg.AccountKey == "" || cfg.Share == "" {
		return nil, fmt.Errorf("account, accountKey and share are required")
	}
	key, err := base64.StdEncoding.DecodeString(cfg.AccountKey)
	if err != nil {
		return nil, coded.Wrap(coded.CodeAuthInvalid, false, fmt.Errorf("decode account key: %w", err))
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Share{
		config: cfg,
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: cfg.Transport,
		},
		key:     key,
		dirSeen: make(map[string]bool),
	}, nil
}

// ID returns the connector template ID.
func (s *Share) ID() string { return "azure.fileshare" }

// Close releases resources.
func (s *Share) Close() error { return nil }

// GetDescriptor returns the connector descriptor.
func (s *Share) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "azure.fileshare",
		Family:      "azure",
		Title:       "Azure File Share",
		Vendor:      "Microsoft",
		Description: "Azure Files REST with SharedKey signing and chunked Put Range uploads",
		Categories:  []string{"storage", "cloud", "microsoft"},
		Protocols:   []string{"REST", "HTTPS"},
		DocsURL:     "https://learn.microsoft.com/en-us/rest/api/storageservices/file-service-rest-api",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "account", Label: "Storage Account", ValueType: "string", Required: true},
			{Key: "accountKey", Label: "Account Key", ValueType: "password", Required: true, Sensitive: true},
			{Key: "share", Label: "Share Name", ValueType: "string", Required: true},
		},
	}
}

// GetCapabilities returns connector capabilities.
func (s *Share) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{SupportsWrite: true}
}

// ValidateConfig probes the share root.
func (s *Share) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	resp, err := s.do(ctx, http.MethodGet, "", url.Values{"restype": {"share"}}, nil, 0, nil)
	if err != nil {
		return &endpoint.ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Share probe failed: %v", err),
		}, nil
	}
	resp.Body.Close()
	return &endpoint.ValidationResult{
		Valid:           true,
		Message:         "Share reachable",
		DetectedVersion: apiVersion,
	}, nil
}

// EnsureDirectory creates every segment of dir, memoizing successes so a
// directory is probed at most once per run. 409 "already exists" counts as
// success.
func (s *Share) EnsureDirectory(ctx context.Context, dir string) error {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}

	segments := strings.Split(dir, "/")
	partial := ""
	for _, seg := range segments {
		if partial == "" {
			partial = seg
		} else {
			partial = partial + "/" + seg
		}

		s.dirMu.Lock()
		seen := s.dirSeen[partial]
		s.dirMu.Unlock()
		if seen {
			continue
		}

		resp, err := s.do(ctx, http.MethodPut, partial, url.Values{"restype": {"directory"}}, nil, 0, nil)
		if err != nil {
			if coded.CodeOf(err) == coded.CodeConflict {
				// Directory already exists.
				s.markDirSeen(partial)
				continue
			}
			return err
		}
		resp.Body.Close()
		s.markDirSeen(partial)
	}
	return nil
}

func (s *Share) markDirSeen(dir string) {
	s.dirMu.Lock()
	s.dirSeen[dir] = true
	s.dirMu.Unlock()
}

// Upload streams r into the share at path, creating the file then writing
// sequential ranges of ChunkSize bytes. Size must be known up front: the
// File service requires the content length at creation.
func (s *Share) Upload(ctx context.Context, path string, r io.Reader, size int64) error {
	path = strings.Trim(path, "/")
	if path == "" {
		return fmt.Errorf("upload path is required")
	}

	if err := s.createFile(ctx, path, size); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	chunk := make([]byte, s.config.ChunkSize)
	var offset int64
	for offset < size {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		want := int64(len(chunk))
		if remaining := size - offset; remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(r, chunk[:want])
		if err != nil {
			return coded.Wrap(coded.CodeSinkWriteFailed, true,
				fmt.Errorf("read source at offset %d: %w", offset, err))
		}
		if err := s.putRange(ctx, path, offset, chunk[:n]); err != nil {
			return err
		}
		offset += int64(n)
	}
	return nil
}

func (s *Share) createFile(ctx context.Context, path string, size int64) error {
	headers := map[string]string{
		"x-ms-type":           "file",
		"x-ms-content-length": strconv.FormatInt(size, 10),
	}
	resp, err := s.do(ctx, http.MethodPut, path, nil, nil, 0, headers)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (s *Share) putRange(ctx context.Context, path string, offset int64, data []byte) error {
	headers := map[string]string{
		"x-ms-write": "update",
		"x-ms-range": fmt.Sprintf("bytes=%d-%d", offset, offset+int64(len(data))-1),
	}
	resp, err := s.do(ctx, http.MethodPut, path,
		url.Values{"comp": {"range"}}, bytes.NewReader(data), int64(len(data)), headers)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// --- Request plumbing ---

func (s *Share) baseURL() string {
	if s.config.BaseURL != "" {
		return s.config.BaseURL
	}
	return fmt.Sprintf("https://%s.file.core.windows.net", s.config.Account)
}

func (s *Share) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentLength int64, headers map[string]string) (*http.Response, error) {
	fullURL := s.baseURL() + "/" + s.config.Share
	if path != "" {
		fullURL += "/" + escapePath(path)
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentLength > 0 {
		req.ContentLength = contentLength
	}
	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("x-ms-version", apiVersion)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.sign(req, contentLength)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == 409 && strings.Contains(string(msg), "ShareSizeLimitReached") {
			return nil, coded.Errorf(coded.CodeQuotaExceeded, false, "share quota reached: %s", msg)
		}
		return nil, httpx.ClassifyStatus(resp.StatusCode, string(msg))
	}
	return resp, nil
}

// sign applies SharedKey authorization per the storage service signing rules.
func (s *Share) sign(req *http.Request, contentLength int64) {
	lengthStr := ""
	if contentLength > 0 {
		lengthStr = strconv.FormatInt(contentLength, 10)
	}

	stringToSign := strings.Join([]string{
		req.Method,
		req.Header.Get("Content-Encoding"),
		req.Header.Get("Content-Language"),
		lengthStr,
		req.Header.Get("Content-MD5"),
		req.Header.Get("Content-Type"),
		"", // Date is carried in x-ms-date
		req.Header.Get("If-Modified-Since"),
		req.Header.Get("If-Match"),
		req.Header.Get("If-None-Match"),
		req.Header.Get("If-Unmodified-Since"),
		req.Header.Get("Range"),
		canonicalizedHeaders(req),
		s.canonicalizedResource(req),
	}, "\n")

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	req.Header.Set("Authorization", fmt.Sprintf("SharedKey %s:%s", s.config.Account, signature))
}

func canonicalizedHeaders(req *http.Request) string {
	var keys []string
	for k := range req.Header {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "x-ms-") {
			keys = append(keys, lower)
		}
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, k+":"+strings.TrimSpace(req.Header.Get(k)))
	}
	return strings.Join(lines, "\n")
}

func (s *Share) canonicalizedResource(req *http.Request) string {
	resource := "/" + s.config.Account + req.URL.EscapedPath()

	query := req.URL.Query()
	if len(query) == 0 {
		return resource
	}
	var keys []string
	for k := range query {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := query[k]
		sort.Strings(values)
		resource += "\n" + k + ":" + strings.Join(values, ",")
	}
	return resource
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
