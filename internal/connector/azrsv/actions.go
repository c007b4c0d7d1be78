package azrsv

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

func (v *Vault) ListActions(ctx context.Context) ([]*endpoint.ActionDescriptor, error) {
	return []*endpoint.ActionDescriptor{
		{
			ID:           "trigger_backup",
			Name:         "Trigger Backup",
			Description:  "Run an on-demand backup of a protected VM and wait for completion",
			Category:     "execute",
			RequiresAuth: true,
		},
		{
			ID:           "trigger_restore",
			Name:         "Trigger Restore",
			Description:  "Restore a VM from a recovery point and wait for completion",
			Category:     "execute",
			RequiresAuth: true,
		},
	}, nil
}

func (v *Vault) GetActionSchema(ctx context.Context, actionID string) (*endpoint.ActionSchema, error) {
	switch actionID {
	case "trigger_backup":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "container", Label: "Protection Container", DataType: "string", Required: true},
				{Name: "item", Label: "Protected Item", DataType: "string", Required: true},
				{Name: "retainDays", Label: "Retain Days", DataType: "integer", Default: 30},
			},
		}, nil
	case "trigger_restore":
		return &endpoint.ActionSchema{
			ActionID: actionID,
			InputFields: []*endpoint.ActionField{
				{Name: "container", Label: "Protection Container", DataType: "string", Required: true},
				{Name: "item", Label: "Protected Item", DataType: "string", Required: true},
				{Name: "recoveryPoint", Label: "Recovery Point ID", DataType: "string", Required: true},
				{Name: "targetResourceGroup", Label: "Target Resource Group", DataType: "string",
					Description: "Restore to an alternate location when set"},
				{Name: "targetVMName", Label: "Target VM Name", DataType: "string"},
			},
		}, nil
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", actionID)
}

func (v *Vault) ExecuteAction(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	switch req.ActionID {
	case "trigger_backup":
		return v.triggerBackup(ctx, req)
	case "trigger_restore":
		return v.triggerRestore(ctx, req)
	}
	return nil, coded.Errorf(coded.CodeNotFound, false, "unknown action: %s", req.ActionID)
}

func (v *Vault) triggerBackup(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	container, _ := req.Parameters["container"].(string)
	if container == "" {
		return missingField("container"), nil
	}
	item, _ := req.Parameters["item"].(string)
	if item == "" {
		return missingField("item"), nil
	}
	retainDays := intParam(req.Parameters, "retainDays", 30)
	expiry := time.Now().UTC().AddDate(0, 0, retainDays)

	if req.DryRun {
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("would back up %s retaining until %s", item, expiry.Format("2006-01-02")),
		}, nil
	}

	body := map[string]any{
		"properties": map[string]any{
			"objectType":                   "IaasVMBackupRequest",
			"recoveryPointExpiryTimeInUTC": expiry.Format(time.RFC3339),
		},
	}
	resp, err := v.post(ctx, v.protectedItemPath(container, item, "backup"), body)
	if err != nil {
		return nil, err
	}
	opURL, err := asyncOperationURL(resp)
	if err != nil {
		return nil, err
	}
	props, err := v.waitForOperation(ctx, opURL)
	if err != nil {
		return nil, err
	}
	return &endpoint.ActionResult{
		Success: true,
		Message: fmt.Sprintf("backup of %s succeeded", item),
		Data: map[string]any{
			"item":        item,
			"retainUntil": expiry.Format(time.RFC3339),
			"properties":  props,
		},
	}, nil
}

func (v *Vault) triggerRestore(ctx context.Context, req *endpoint.ActionRequest) (*endpoint.ActionResult, error) {
	container, _ := req.Parameters["container"].(string)
	if container == "" {
		return missingField("container"), nil
	}
	item, _ := req.Parameters["item"].(string)
	if item == "" {
		return missingField("item"), nil
	}
	recoveryPoint, _ := req.Parameters["recoveryPoint"].(string)
	if recoveryPoint == "" {
		return missingField("recoveryPoint"), nil
	}

	recoveryType := "OriginalLocation"
	properties := map[string]any{
		"objectType":            "IaasVMRestoreRequest",
		"recoveryType":          recoveryType,
		"createNewCloudService": false,
	}
	if targetRG, _ := req.Parameters["targetResourceGroup"].(string); targetRG != "" {
		recoveryType = "AlternateLocation"
		properties["recoveryType"] = recoveryType
		properties["targetResourceGroupId"] = fmt.Sprintf("/subscriptions/%s/resourceGroups/%s",
			v.config.SubscriptionID, targetRG)
		if targetVM, _ := req.Parameters["targetVMName"].(string); targetVM != "" {
			properties["targetVirtualMachineName"] = targetVM
		}
	}

	if req.DryRun {
		return &endpoint.ActionResult{
			Success: true,
			Message: fmt.Sprintf("would restore %s from %s (%s)", item, recoveryPoint, recoveryType),
		}, nil
	}

	path := v.protectedItemPath(container, item, "recoveryPoints/"+recoveryPoint+"/restore")
	resp, err := v.post(ctx, path, map[string]any{"properties": properties})
	if err != nil {
		return nil, err
	}
	opURL, err := asyncOperationURL(resp)
	if err != nil {
		return nil, err
	}
	props, err := v.waitForOperation(ctx, opURL)
	if err != nil {
		return nil, err
	}
	return &endpoint.ActionResult{
		Success: true,
		Message: fmt.Sprintf("restore of %s from %s succeeded", item, recoveryPoint),
		Data: map[string]any{
			"item":          item,
			"recoveryPoint": recoveryPoint,
			"recoveryType":  recoveryType,
			"properties":    props,
		},
	}, nil
}

// ListRecoveryPoints returns the recovery points of a protected item,
// newest first as the API returns them.
func (v *Vault) ListRecoveryPoints(ctx context.Context, container, item string) ([]endpoint.Record, error) {
	return v.armList(ctx, v.protectedItemPath(container, item, "recoveryPoints"), nil)
}

// ListJobs returns backup jobs, optionally filtered by status
// (InProgress, Completed, Failed).
func (v *Vault) ListJobs(ctx context.Context, status string) ([]endpoint.Record, error) {
	query := url.Values{}
	if status != "" {
		query.Set("$filter", fmt.Sprintf("status eq '%s'", status))
	}
	return v.armList(ctx, v.vaultPath("backupJobs"), query)
}

func missingField(name string) *endpoint.ActionResult {
	return &endpoint.ActionResult{
		Success: false,
		Message: fmt.Sprintf("missing required field: %s", name),
		Errors:  []endpoint.ActionError{{Code: "missing_field", Field: name, Message: name + " is required"}},
	}
}

func intParam(params map[string]any, key string, defaultVal int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}
