package github

import (
	"context"
	"fmt"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

func (g *GitHub) ListActions(ctx context.Context) ([]*endpoint.ActionDescriptor, error) {
	return []*endpoint.ActionDescriptor{
		{
			ID:           "dispatch_workflow",
			Name:         "Dispatch Workflow",
			Description:  "Trigger a workflow_dispatch event on a workflow file",
			Category:     "execute",
			RequiresAuth: true,
		},
		{
			ID:           "create_deployment",
			Name:         "Create Deployment",
			Description:  "Create a deployment for a ref and environment",
			Category:     "create",
			RequiresAuth: true,
		},
	}, nil
}

func (g *GitHub) GetActionSchema(ctx context.Context, actionID string) (*endpoint.ActionSchema, error) {
	switch actionID {
	case "dispatch_workflow":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "workflow", Label: "Workflow File", DataType: "string", Required: true,
					Description: "Workflow file name, e.g. deploy.yml, or numeric workflow ID"},
				{Name: "ref", Label: "Git Ref", DataType: "string", Required: true},
				{Name: "inputs", Label: "Inputs", DataType: "object",
					Description: "workflow_dispatch input values"},
			},
		}, nil
	case "create_deployment":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "ref", Label: "Git Ref", DataType: "string", Required: true},
				{Name: "environment", Label: "Environment", DataType: "string", Default: "production"},
				{Name: "description", Label: "Description", DataType: "string"},
			},
			OutputFields: []*endpoint.ActionField{
				{Name: "id", Label: "Deployment ID", DataType: "integer"},
			},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", actionID)
}

func (g *GitHub) ExecuteAction(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	switch req.ActionID {
	case "dispatch_workflow":
		return g.dispatchWorkflow(ctx, req)
	case "create_deployment":
		return g.createDeployment(ctx, req)
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", req.ActionID)
}

func (g *GitHub) dispatchWorkflow(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	workflow, _ := req.Parameters["workflow"].(string)
	if workflow == "" {
		return missingField("workflow"), nil
	}
	ref, _ := req.Parameters["ref"].(string)
	if ref == "" {
		return missingField("ref"), nil
	}
	if req.DryRun {
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("would dispatch %s on %s", workflow, ref),
		}, nil
	}

	body := map[string]any{"ref": ref}
	if inputs, ok := req.Parameters["inputs"].(map[string]any); ok && len(inputs) > 0 {
		body["inputs"] = inputs
	}
	// Returns 204 with no body on success.
	if _, err := g.post(ctx, g.repoPath("actions/workflows/"+workflow+"/dispatches"), body); err != nil {
		return nil, err
	}
	return &endpoint.ActionResult{
		Success: true,
		Message: fmt.Sprintf("dispatched %s on %s", workflow, ref),
		Data:    map[string]any{"workflow": workflow, "ref": ref},
	}, nil
}

func (g *GitHub) createDeployment(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	ref, _ := req.Parameters["ref"].(string)
	if ref == "" {
		return missingField("ref"), nil
	}
	environment, _ := req.Parameters["environment"].(string)
	if environment == "" {
		environment = "production"
	}
	if req.DryRun {
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("would deploy %s to %s", ref, environment),
		}, nil
	}

	body := map[string]any{
		"ref":         ref,
		"environment": environment,
		"auto_merge":  false,
	}
	if desc, ok := req.Parameters["description"].(string); ok && desc != "" {
		body["description"] = desc
	}
	resp, err := g.post(ctx, g.repoPath("deployments"), body)
	if err != nil {
		return nil, err
	}
	var created struct {
		ID      int64  `json:"id"`
		Message string `json:"message"`
	}
	if err := resp.JSON(&created); err != nil {
		return nil, err
	}
	// A 202 means GitHub merged the default branch first and did not
	// create the deployment yet.
	if resp.StatusCode == 202 {
		return &endpoint.ActionResult{
			Success:  false,
			Message:  "deployment deferred: " + created.Message,
			Warnings: []string{"auto-merge was required before deploying"},
		}, nil
	}
	return &endpoint.ActionResult{
		Success: true,
		Message: fmt.Sprintf("deployment %d created for %s in %s", created.ID, ref, environment),
		Data:    map[string]any{"id": created.ID, "ref": ref, "environment": environment},
	}, nil
}

func missingField(name string) *endpoint.ActionResult {
	return &endpoint.ActionResult{
		Success: false,
		Message: fmt.Sprintf("missing required field: %s", name),
		Errors:  []endpoint.ActionError{{Code: "missing_field", Field: name, Message: name + " is required"}},
	}
}
