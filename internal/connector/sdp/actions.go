package sdp

import (
	"context"
	"fmt"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// ListDatasets returns the readable datasets.
func (s *SDP) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	return []*endpoint.Dataset{
		{ID: "sdp.requests", Name: "Open Requests", Kind: "table", PrimaryKeys: []string{"id"}},
	}, nil
}

// GetSchema returns the dataset schema.
func (s *SDP) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	if datasetID != "sdp.requests" {
		return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", datasetID)
	}
	return &endpoint.Schema{Fields: []*endpoint.FieldDefinition{
		{Name: "id", DataType: "STRING", Position: 0},
		{Name: "subject", DataType: "STRING", Position: 1},
		{Name: "description", DataType: "STRING", Position: 2},
	}}, nil
}

// Read streams a dataset.
func (s *SDP) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	if req.DatasetID != "sdp.requests" {
		return nil, coded.Errorf(coded.CodeNotFound, false, "unknown dataset: %s", req.DatasetID)
	}
	records, err := s.ListOpenRequests(ctx, int(req.Limit))
	if err != nil {
		return nil, err
	}
	return endpoint.NewSliceIterator(records), nil
}

// ListActions returns the control-plane actions.
func (s *SDP) ListActions(ctx context.Context) ([]*endpoint.ActionDescriptor, error) {
	return []*endpoint.ActionDescriptor{
		{ID: "create_request", Name: "Create Request", Category: "create", RequiresAuth: true},
		{ID: "add_note", Name: "Add Worknote", Category: "update", RequiresAuth: true},
		{ID: "close_request", Name: "Close Request", Category: "update", RequiresAuth: true},
		{ID: "update_request", Name: "Update Request", Category: "update", RequiresAuth: true},
	}, nil
}

// GetActionSchema returns the input/output schema for an action.
func (s *SDP) GetActionSchema(ctx context.Context, actionID string) (*endpoint.ActionSchema, error) {
	switch actionID {
	case "create_request":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "subject", DataType: "string", Required: true},
				{Name: "description", DataType: "string"},
				{Name: "priority", DataType: "string"},
				{Name: "group", DataType: "string"},
			},
			OutputFields: []*endpoint.ActionField{{Name: "requestId", DataType: "string"}},
		}, nil
	case "add_note":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "requestId", DataType: "string", Required: true},
				{Name: "note", DataType: "string", Required: true},
			},
		}, nil
	case "close_request":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "requestId", DataType: "string", Required: true},
				{Name: "comments", DataType: "string"},
			},
		}, nil
	case "update_request":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "requestId", DataType: "string", Required: true},
				{Name: "fields", DataType: "object", Required: true},
			},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", actionID)
}

// ExecuteAction runs an action.
func (s *SDP) ExecuteAction(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	params := req.Parameters
	switch req.ActionID {
	case "create_request":
		subject := paramString(params, "subject")
		if subject == "" {
			return missingField("subject"), nil
		}
		if req.DryRun {
			return &endpoint.ActionResult{Success: true, Message: "dry run: request not created"}, nil
		}
		id, err := s.CreateRequest(ctx, subject, paramString(params, "description"),
			paramString(params, "priority"), paramString(params, "group"))
		if err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("created request %s", id),
			Data:    map[string]any{"requestId": id},
		}, nil

	case "add_note":
		id := paramString(params, "requestId")
		if id == "" {
			return missingField("requestId"), nil
		}
		if err := s.AddNote(ctx, id, paramString(params, "note")); err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{Success: true, Message: "note added"}, nil

	case "close_request":
		id := paramString(params, "requestId")
		if id == "" {
			return missingField("requestId"), nil
		}
		if err := s.CloseRequest(ctx, id, paramString(params, "comments")); err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{Success: true, Message: "request closed"}, nil

	case "update_request":
		id := paramString(params, "requestId")
		if id == "" {
			return missingField("requestId"), nil
		}
		fields, _ := params["fields"].(map[string]any)
		if err := s.UpdateRequest(ctx, id, fields); err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{Success: true, Message: "request updated"}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", req.ActionID)
}

func missingField(name string) *endpoint.ActionResult {
	return &endpoint.ActionResult{
		Success: false,
		Errors:  []endpoint.ActionError{{Code: "missing_field", Field: name, Message: name + " is required"}},
	}
}

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
