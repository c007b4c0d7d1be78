package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// writeParquet encodes the batch as a single SNAPPY-compressed Parquet part.
func (s *Sink) writeParquet(ctx context.Context, req *endpoint.WriteRequest, loadDate, runID string) (string, int64, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(req.Schema), pfw, 4)
	if err != nil {
		return "", 0, coded.Wrap(coded.CodeSinkWriteFailed, true, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var rows int64
	for _, rec := range req.Records {
		row := projectRow(rec, req.Schema)
		rowJSON, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return "", rows, coded.Wrap(coded.CodeSinkWriteFailed, true, err)
		}
		if err := pw.Write(string(rowJSON)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return "", rows, coded.Wrap(coded.CodeSinkWriteFailed, true, err)
		}
		rows++
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return "", rows, coded.Wrap(coded.CodeSinkWriteFailed, true, err)
	}
	_ = pfw.Close()

	key := s.partitionKey(req.DatasetID, loadDate, runID, "part-000000.parquet")
	if err := s.store.PutObject(ctx, s.config.Bucket, key, buf.Bytes()); err != nil {
		return "", rows, err
	}
	return key, rows, nil
}

func parquetSchema(schema *endpoint.Schema) string {
	fields := make([]map[string]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", f.Name, parquetType(f.DataType)),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func parquetType(dataType string) string {
	switch strings.ToUpper(dataType) {
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "INTEGER", "INT", "BIGINT", "LONG":
		return "INT64"
	case "FLOAT", "DOUBLE", "NUMBER", "NUMERIC", "DECIMAL":
		return "DOUBLE"
	default:
		return "BYTE_ARRAY"
	}
}

// projectRow narrows a record to the schema fields so ragged records
// produce consistent columns.
func projectRow(rec endpoint.Record, schema *endpoint.Schema) map[string]any {
	row := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		row[f.Name] = rec[f.Name]
	}
	return row
}
