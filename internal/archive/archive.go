// Package archive is the object-store sink. Export runs land here as
// dt=/run= partitioned objects: Parquet when the dataset has a schema,
// gzipped JSONL otherwise. Finalize drops a _SUCCESS marker and commits
// the dataset watermark.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/observability"
)

const defaultPartSize = 1000

// Config configures the archive sink.
type Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	Bucket          string
	BasePrefix      string
	// PartSize caps records per JSONL part object.
	PartSize int
}

// Sink writes export batches to the object store.
type Sink struct {
	config *Config
	store  ObjectStore
	log    zerolog.Logger
}

var _ endpoint.SinkEndpoint = (*Sink)(nil)

// New connects an S3-backed sink.
func New(cfg *Config) (*Sink, error) {
	store, err := NewS3Store(cfg.EndpointURL, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Region, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, store), nil
}

// NewWithStore builds a sink over any ObjectStore.
func NewWithStore(cfg *Config, store ObjectStore) *Sink {
	if cfg.Bucket == "" {
		cfg.Bucket = "relay-archive"
	}
	cfg.BasePrefix = strings.Trim(cfg.BasePrefix, "/")
	if cfg.BasePrefix == "" {
		cfg.BasePrefix = "relay"
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = defaultPartSize
	}
	return &Sink{config: cfg, store: store, log: observability.Component("archive")}
}

func (s *Sink) ID() string   { return "archive.objectstore" }
func (s *Sink) Close() error { return nil }

func (s *Sink) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "archive.objectstore",
		Family:      "storage",
		Title:       "Object Store Archive",
		Vendor:      "MinIO",
		Description: "Partitioned Parquet/JSONL archive on MinIO or S3",
		Categories:  []string{"storage", "archive"},
		Protocols:   []string{"S3"},
		Fields: []*endpoint.FieldDescriptor{
			{Key: "endpointUrl", Label: "Endpoint URL", ValueType: "string", Required: true},
			{Key: "accessKeyId", Label: "Access Key", ValueType: "string", Required: true},
			{Key: "secretAccessKey", Label: "Secret Key", ValueType: "password", Required: true, Sensitive: true},
			{Key: "bucket", Label: "Bucket", ValueType: "string"},
		},
	}
}

func (s *Sink) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsWrite:     true,
		SupportsFinalize:  true,
		SupportsWatermark: true,
	}
}

func (s *Sink) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	if err := s.store.Ping(ctx); err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("object store unreachable: %v", err)}, nil
	}
	return &endpoint.ValidationResult{Valid: true, Message: "object store reachable"}, nil
}

// WriteRaw writes one batch under dt=<loadDate>/run=<runID>. Parquet is
// used when the request carries a schema, gzipped JSONL otherwise; a
// Parquet encoding failure falls back to JSONL so a bad type mapping
// never loses a batch.
func (s *Sink) WriteRaw(ctx context.Context, req *endpoint.WriteRequest) (*endpoint.WriteResult, error) {
	if req == nil || req.DatasetID == "" {
		return nil, coded.Errorf(coded.CodeSinkWriteFailed, false, "dataset ID is required")
	}
	if len(req.Records) == 0 {
		return &endpoint.WriteResult{RowsWritten: 0}, nil
	}

	loadDate := req.LoadDate
	if loadDate == "" {
		loadDate = time.Now().UTC().Format("2006-01-02")
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	if err := s.store.EnsureBucket(ctx, s.config.Bucket); err != nil {
		return nil, err
	}

	if req.Schema != nil && len(req.Schema.Fields) > 0 {
		path, rows, err := s.writeParquet(ctx, req, loadDate, runID)
		if err == nil {
			return &endpoint.WriteResult{RowsWritten: rows, Path: path}, nil
		}
		s.log.Warn().Err(err).Str("dataset", req.DatasetID).Str("run", runID).
			Msg("parquet encode failed, falling back to JSONL")
	}
	return s.writeJSONL(ctx, req, loadDate, runID)
}

func (s *Sink) writeJSONL(ctx context.Context, req *endpoint.WriteRequest, loadDate, runID string) (*endpoint.WriteResult, error) {
	var objects []string
	var rows int64
	seq := 0

	for start := 0; start < len(req.Records); start += s.config.PartSize {
		end := start + s.config.PartSize
		if end > len(req.Records) {
			end = len(req.Records)
		}

		buf := &bytes.Buffer{}
		gz := gzip.NewWriter(buf)
		enc := json.NewEncoder(gz)
		for _, rec := range req.Records[start:end] {
			if err := enc.Encode(rec); err != nil {
				gz.Close()
				return nil, coded.Wrap(coded.CodeSinkWriteFailed, true, err)
			}
		}
		if err := gz.Close(); err != nil {
			return nil, coded.Wrap(coded.CodeSinkWriteFailed, true, err)
		}

		key := s.partitionKey(req.DatasetID, loadDate, runID, fmt.Sprintf("part-%06d.jsonl.gz", seq))
		if err := s.store.PutObject(ctx, s.config.Bucket, key, buf.Bytes()); err != nil {
			return nil, err
		}
		objects = append(objects, key)
		rows += int64(end - start)
		seq++
	}

	return &endpoint.WriteResult{RowsWritten: rows, Path: strings.Join(objects, ",")}, nil
}

// Finalize drops the _SUCCESS marker for a partition.
func (s *Sink) Finalize(ctx context.Context, datasetID string, loadDate string) (*endpoint.FinalizeResult, error) {
	key := s.datasetPrefix(datasetID) + "/" + fmt.Sprintf("dt=%s", loadDate) + "/_SUCCESS"
	if err := s.store.PutObject(ctx, s.config.Bucket, key, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		return nil, err
	}
	return &endpoint.FinalizeResult{FinalPath: s.datasetPrefix(datasetID) + "/" + fmt.Sprintf("dt=%s", loadDate)}, nil
}

// CommitWatermark records the high-water mark for incremental exports.
func (s *Sink) CommitWatermark(ctx context.Context, datasetID, watermark string) error {
	key := s.datasetPrefix(datasetID) + "/_watermark"
	return s.store.PutObject(ctx, s.config.Bucket, key, []byte(watermark))
}

// GetLatestWatermark returns the last committed watermark, empty when the
// dataset has never been exported.
func (s *Sink) GetLatestWatermark(ctx context.Context, datasetID string) (string, error) {
	key := s.datasetPrefix(datasetID) + "/_watermark"
	data, err := s.store.GetObject(ctx, s.config.Bucket, key)
	if err != nil {
		if coded.CodeOf(err) == coded.CodeNotFound {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (s *Sink) datasetPrefix(datasetID string) string {
	return s.config.BasePrefix + "/" + strings.ReplaceAll(datasetID, "/", ".")
}

func (s *Sink) partitionKey(datasetID, loadDate, runID, name string) string {
	return strings.Join([]string{
		s.datasetPrefix(datasetID),
		fmt.Sprintf("dt=%s", loadDate),
		fmt.Sprintf("run=%s", runID),
		name,
	}, "/")
}
