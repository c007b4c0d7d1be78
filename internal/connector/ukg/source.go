package ukg

import (
	"context"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// ListDatasets returns the readable datasets.
func (u *UKG) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "ukg.dataview", Name: "Data View Rows", Kind: "table"},
		{ID: "ukg.hyperfinds", Name: "Public Hyperfinds", Kind: "table"},
	}, nil
}

// GetSchema returns the dataset schema. Data View columns are dynamic, so
// only the fixed datasets carry one.
func (u *UKG) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	switch datasetID {
	case "ukg.hyperfinds":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "BIGINT", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
		}}, nil
	case "ukg.dataview":
		return &endpoint.Schema{}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", datasetID)
}

// Read streams a dataset. ukg.dataview expects dataView, hyperfind and
// period in the request params.
func (u *UKG) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	switch req.DatasetID {
	case "ukg.dataview":
		records, err := u.ExecuteDataView(ctx, &DataViewRequest{
			DataView:       paramString(req.Params, "dataView"),
			Hyperfind:      paramString(req.Params, "hyperfind"),
			SymbolicPeriod: paramString(req.Params, "period"),
		})
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(limitRecords(records, req.Limit)), nil
	case "ukg.hyperfinds":
		resp, err := u.client.Get(ctx, "/api/v1/commons/hyperfind/public", nil)
		if err != nil {
			return nil, err
		}
		var result struct {
			HyperfindQueries []namedObject `json:"hyperfindQueries"`
		}
		if err := resp.JSON(&result); err != nil {
			return nil, err
		}
		records := make([]endpoint.Record, 0, len(result.HyperfindQueries))
		for _, h := range result.HyperfindQueries {
			records = append(records, endpoint.Record{"id": h.ID, "name": h.Name})
		}
		return endpoint.NewSliceIterator(limitRecords(records, req.Limit)), nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", req.DatasetID)
}

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func limitRecords(records []endpoint.Record, limit int64) []endpoint.Record {
	if limit > 0 && int64(len(records)) > limit {
		return records[:limit]
	}
	return records
}
