package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/opsrelay/relay-core/internal/coded"
)

// ObjectStore abstracts the object operations the sink needs. S3Store backs
// real runs; MemoryStore backs tests and dry runs.
type ObjectStore interface {
	Ping(ctx context.Context) error
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3Store implements ObjectStore on MinIO/S3 via minio-go.
type S3Store struct {
	client *minio.Client
	region string
}

// NewS3Store connects to the object store endpoint.
func NewS3Store(endpointURL, accessKey, secretKey, region string, useSSL bool) (*S3Store, error) {
	if endpointURL == "" {
		return nil, coded.Errorf(coded.CodeEndpointUnreachable, true, "endpoint URL is required")
	}
	if accessKey == "" || secretKey == "" {
		return nil, coded.Errorf(coded.CodeAuthInvalid, false, "credentials are required")
	}

	host := endpointURL
	host = strings.TrimPrefix(host, "https://")
	if host != endpointURL {
		useSSL = true
	}
	host = strings.TrimPrefix(host, "http://")

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, fmt.Errorf("create client: %w", err))
	}
	return &S3Store{client: client, region: region}, nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return classifyObjectError(err)
	}
	return nil
}

func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return classifyObjectError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return classifyObjectError(err)
	}
	return nil
}

func (s *S3Store) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return classifyObjectError(err)
	}
	return nil
}

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyObjectError(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyObjectError(err)
	}
	return data, nil
}

func (s *S3Store) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classifyObjectError(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func classifyObjectError(err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return coded.Wrap(coded.CodeNotFound, false, err)
		case "AccessDenied":
			return coded.Wrap(coded.CodePermissionDenied, false, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return coded.Wrap(coded.CodeAuthInvalid, false, err)
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return coded.Wrap(coded.CodeNotFound, false, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return coded.Wrap(coded.CodeTimeout, true, err)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	return coded.Wrap(coded.CodeSinkWriteFailed, true, err)
}

// MemoryStore is an in-memory ObjectStore for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryStore) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return coded.Errorf(coded.CodeNotFound, false, "bucket %s not found", bucket)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b[key] = cp
	return nil
}

func (s *MemoryStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, coded.Errorf(coded.CodeNotFound, false, "bucket %s not found", bucket)
	}
	data, ok := b[key]
	if !ok {
		return nil, coded.Errorf(coded.CodeNotFound, false, "object %s not found", key)
	}
	return data, nil
}

func (s *MemoryStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, coded.Errorf(coded.CodeNotFound, false, "bucket %s not found", bucket)
	}
	var keys []string
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
