package ukg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// ListActions returns the control-plane actions.
func (u *UKG) ListActions(ctx context.Context) ([]*endpoint.ActionDescriptor, error) {
	return []*endpoint.ActionDescriptor{
		{
			ID:           "run_integration",
			Name:         "Run Integration",
			Description:  "Trigger a Boomi-backed integration by name and wait for completion",
			Category:     "execute",
			RequiresAuth: true,
			Tags:         []string{"integration"},
		},
		{
			ID:           "execute_dataview",
			Name:         "Execute Data View",
			Description:  "Run a Data View against a Hyperfind and symbolic period",
			Category:     "execute",
			RequiresAuth: true,
			Tags:         []string{"reporting"},
		},
	}, nil
}

// GetActionSchema returns the input/output schema for an action.
func (u *UKG) GetActionSchema(ctx context.Context, actionID string) (*endpoint.ActionSchema, error) {
	switch actionID {
	case "run_integration":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "name", Label: "Integration Name", DataType: "string", Required: true},
				{Name: "parameters", Label: "Integration Parameters", DataType: "object"},
			},
			OutputFields: []*endpoint.ActionField{
				{Name: "executionId", DataType: "string"},
				{Name: "status", DataType: "string"},
			},
		}, nil
	case "execute_dataview":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "dataView", Label: "Data View Name", DataType: "string", Required: true},
				{Name: "hyperfind", Label: "Hyperfind Name", DataType: "string"},
				{Name: "period", Label: "Symbolic Period", DataType: "string", Default: "Today"},
			},
			OutputFields: []*endpoint.ActionField{
				{Name: "rows", DataType: "integer"},
			},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", actionID)
}

// ExecuteAction runs an action.
func (u *UKG) ExecuteAction(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	switch req.ActionID {
	case "run_integration":
		return u.runIntegration(ctx, req)
	case "execute_dataview":
		records, err := u.ExecuteDataView(ctx, &DataViewRequest{
			DataView:       paramString(req.Parameters, "dataView"),
			Hyperfind:      paramString(req.Parameters, "hyperfind"),
			SymbolicPeriod: paramString(req.Parameters, "period"),
		})
		if err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("data view returned %d rows", len(records)),
			Data:    map[string]any{"rows": len(records)},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", req.ActionID)
}

// runIntegration resolves the integration by name, triggers an execution
// and polls until it finishes.
func (u *UKG) runIntegration(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	name := paramString(req.Parameters, "name")
	if name == "" {
		return &endpoint.ActionResult{
			Success: false,
			Errors:  []endpoint.ActionError{{Code: "missing_field", Field: "name", Message: "integration name is required"}},
		}, nil
	}
	if req.DryRun {
		return &endpoint.ActionResult{Success: true, Message: "dry run: integration not triggered"}, nil
	}

	resp, err := u.client.Get(ctx, "/api/v1/platform/integrations", nil)
	if err != nil {
		return nil, err
	}
	var integrations []namedObject
	if err := resp.JSON(&integrations); err != nil {
		return nil, err
	}
	var integrationID int64
	for _, in := range integrations {
		if strings.EqualFold(in.Name, name) {
			integrationID = in.ID
			break
		}
	}
	if integrationID == 0 {
		return nil, coded.Errorf(coded.CodeNotFound, false, "integration %q not found", name)
	}

	body := map[string]any{}
	if params, ok := req.Parameters["parameters"].(map[string]any); ok {
		body["integrationParameters"] = params
	}
	resp, err = u.client.Post(ctx, fmt.Sprintf("/api/v1/platform/integrations/%d/executions", integrationID), body)
	if err != nil {
		return nil, err
	}
	var exec struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := resp.JSON(&exec); err != nil {
		return nil, err
	}

	status := exec.Status
	for i := 0; i < u.config.MaxPolls; i++ {
		if isTerminalIntegrationStatus(status) {
			break
		}
		select {
		case <-time.After(u.config.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		resp, err = u.client.Get(ctx, fmt.Sprintf("/api/v1/platform/integrations/%d/executions/%d", integrationID, exec.ID), nil)
		if err != nil {
			return nil, err
		}
		var poll struct {
			Status string `json:"status"`
		}
		if err := resp.JSON(&poll); err != nil {
			return nil, err
		}
		status = poll.Status
	}

	result := &endpoint.ActionResult{
		Success: strings.EqualFold(status, "Completed"),
		Message: fmt.Sprintf("integration %s ended with status %s", name, status),
		Data: map[string]any{
			"executionId": fmt.Sprintf("%d", exec.ID),
			"status":      status,
		},
	}
	if !result.Success {
		result.Errors = []endpoint.ActionError{{Code: "integration_failed", Message: status}}
	}
	return result, nil
}

func isTerminalIntegrationStatus(status string) bool {
	switch strings.ToUpper(status) {
	case "COMPLETED", "FAILED", "CANCELLED", "COMPLETED_WITH_ERRORS":
		return true
	}
	return false
}
