package ldapdir

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// RowError is one failed row in a bulk apply.
type RowError struct {
	Line int
	Key  string
	Err  error
}

// BulkResult summarizes a bulk apply.
type BulkResult struct {
	Applied int
	Failed  int
	Errors  []RowError
}

// BulkApplyCSV reads a CSV whose first column names the user
// (sAMAccountName) and whose remaining columns are attribute names, and
// replaces those attributes per user. Row failures are collected, not
// fatal: one bad user must not stop an HR feed of thousands.
func (d *Directory) BulkApplyCSV(ctx context.Context, r io.Reader) (*BulkResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("csv needs a key column and at least one attribute column")
	}
	keyColumn := header[0]
	if !strings.EqualFold(keyColumn, "sAMAccountName") {
		return nil, fmt.Errorf("first column must be sAMAccountName, got %q", keyColumn)
	}

	c, err := d.dialFn(d.config)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	result := &BulkResult{}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			continue
		}

		key := strings.TrimSpace(row[0])
		if key == "" {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Line: line, Err: fmt.Errorf("empty key column")})
			continue
		}

		attrs := make(map[string]string, len(header)-1)
		for i := 1; i < len(header) && i < len(row); i++ {
			attrs[header[i]] = row[i]
		}

		if err := d.applyRow(c, key, attrs); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Line: line, Key: key, Err: err})
			continue
		}
		result.Applied++
	}
	return result, nil
}

func (d *Directory) applyRow(c conn, key string, attrs map[string]string) error {
	dn, err := d.findUserDN(c, key)
	if err != nil {
		return err
	}
	return replaceAttributes(c, dn, attrs)
}
