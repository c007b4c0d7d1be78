package ukg

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/opsrelay/relay-core/internal/endpoint"
)

// WriteCSV renders records as CSV with a header row. Columns follow the
// given order; pass nil to derive a sorted column set from the records.
func WriteCSV(w io.Writer, records []endpoint.Record, columns []string) error {
	if len(columns) == 0 {
		columns = collectColumns(records)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			row[i] = formatCell(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func collectColumns(records []endpoint.Record) []string {
	seen := map[string]bool{}
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integers clean.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
