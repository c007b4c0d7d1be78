package ldapdir

import (
	"context"
	"fmt"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// ListActions returns the control-plane actions.
func (d *Directory) ListActions(ctx context.Context) ([]*endpoint.ActionDescriptor, error) {
	return []*endpoint.ActionDescriptor{
		{ID: "replace_attributes", Name: "Replace Attributes", Category: "update", RequiresAuth: true},
		{ID: "search_users", Name: "Search Users", Category: "execute", RequiresAuth: true},
	}, nil
}

// GetActionSchema returns the input/output schema for an action.
func (d *Directory) GetActionSchema(ctx context.Context, actionID string) (*endpoint.ActionSchema, error) {
	switch actionID {
	case "replace_attributes":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "sAMAccountName", DataType: "string", Required: true},
				{Name: "attributes", DataType: "object", Required: true,
					Description: "attribute name to value; empty value clears the attribute"},
			},
			OutputFields: []*endpoint.ActionField{{Name: "dn", DataType: "string"}},
		}, nil
	case "search_users":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "filter", DataType: "string"},
				{Name: "attributes", DataType: "array"},
			},
			OutputFields: []*endpoint.ActionField{{Name: "entries", DataType: "array"}},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", actionID)
}

// ExecuteAction runs an action.
func (d *Directory) ExecuteAction(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	switch req.ActionID {
	case "replace_attributes":
		account, _ := req.Parameters["sAMAccountName"].(string)
		if account == "" {
			return &endpoint.ActionResult{
				Success: false,
				Errors:  []endpoint.ActionError{{Code: "missing_field", Field: "sAMAccountName", Message: "sAMAccountName is required"}},
			}, nil
		}
		attrs := map[string]string{}
		if raw, ok := req.Parameters["attributes"].(map[string]any); ok {
			for k, v := range raw {
				attrs[k] = fmt.Sprintf("%v", v)
			}
		}
		dn, err := d.FindUserDN(ctx, account)
		if err != nil {
			return nil, err
		}
		if req.DryRun {
			return &endpoint.ActionResult{
				Success: true,
				Message: fmt.Sprintf("dry run: would replace %d attributes on %s", len(attrs), dn),
				Data:    map[string]any{"dn": dn},
			}, nil
		}
		if err := d.ReplaceAttributes(ctx, dn, attrs); err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("replaced %d attributes", len(attrs)),
			Data:    map[string]any{"dn": dn},
		}, nil

	case "search_users":
		filter, _ := req.Parameters["filter"].(string)
		var attributes []string
		if raw, ok := req.Parameters["attributes"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					attributes = append(attributes, s)
				}
			}
		}
		entries, err := d.SearchUsers(ctx, filter, attributes)
		if err != nil {
			return nil, err
		}
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("%d entries", len(entries)),
			Data:    map[string]any{"entries": entries},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", req.ActionID)
}
