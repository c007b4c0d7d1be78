package azrsv

import (
	"context"
	"net/url"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

// ListDatasets returns the readable datasets.
func (v *Vault) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "rsv.jobs", Name: "Backup Jobs", Kind: "table", PrimaryKeys: []string{"name"}},
		{ID: "rsv.recoverypoints", Name: "Recovery Points", Kind: "table", PrimaryKeys: []string{"name"}},
	}, nil
}

// GetSchema returns the dataset schema.
func (v *Vault) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	switch datasetID {
	case "rsv.jobs":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "STRING", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
			{Name: "properties", DataType: "JSON", Position: 2},
		}}, nil
	case "rsv.recoverypoints":
		return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "STRING", Position: 0},
			{Name: "name", DataType: "STRING", Position: 1},
			{Name: "properties", DataType: "JSON", Position: 2},
		}}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", datasetID)
}

// Read streams a dataset. rsv.recoverypoints requires container and item
// params; rsv.jobs accepts an optional status filter.
func (v *Vault) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	switch req.DatasetID {
	case "rsv.jobs":
		status, _ := req.Params["status"].(string)
		records, err := v.ListJobs(ctx, status)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(limitRecords(records, req)), nil
	case "rsv.recoverypoints":
		container, _ := req.Params["container"].(string)
		item, _ := req.Params["item"].(string)
		if container == "" || item == "" {
			return nil, coded.Errorf(coded.CodeBadPayload, false, "container and item params are required")
		}
		records, err := v.ListRecoveryPoints(ctx, container, item)
		if err != nil {
			return nil, err
		}
		return endpoint.NewSliceIterator(limitRecords(records, req)), nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", req.DatasetID)
}

// armList fetches an ARM collection ({"value": [...]}), following nextLink
// continuation URLs.
func (v *Vault) armList(ctx context.Context, path string, query url.Values) ([]endpoint.Record, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	paginator := httpx.NewODataPaginator(path, query)
	paginator.NextLinkKey = "nextLink"

	var records []endpoint.Record
	req := paginator.FirstPage()
	for req != nil {
		resp, err := v.client.Do(ctx, req)
		if err != nil {
			return nil, classify(err)
		}
		var body struct {
			Value []map[string]any `json:"value"`
		}
		if err := resp.JSON(&body); err != nil {
			return nil, err
		}
		for _, item := range body.Value {
			records = append(records, endpoint.Record(item))
		}
		if req, err = paginator.NextPage(ctx, resp); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func limitRecords(records []endpoint.Record, req *endpoint.ReadRequest) []endpoint.Record {
	if req != nil && req.Limit > 0 && int64(len(records)) > req.Limit {
		return records[:req.Limit]
	}
	return records
}
