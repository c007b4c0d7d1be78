package azrsv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// stubARM plays the ARM Recovery Services surface: long-running operations
// answer 202 with an Azure-AsyncOperation header and flip to Succeeded after
// a configurable number of polls.
type stubARM struct {
	mu            sync.Mutex
	pollsUntilOK  int
	polls         int
	backupCalls   int
	restoreCalls  int
	lastBody      map[string]any
	failOperation bool
	conflict      bool
}

func (s *stubARM) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := httptest.NewRecorder()
	path := req.URL.Path

	switch {
	case strings.HasSuffix(path, "/backup") || strings.HasSuffix(path, "/restore"):
		if strings.HasSuffix(path, "/backup") {
			s.backupCalls++
		} else {
			s.restoreCalls++
		}
		body, _ := io.ReadAll(req.Body)
		json.Unmarshal(body, &s.lastBody)
		if s.conflict {
			rec.WriteHeader(409)
			rec.WriteString(`{"error":{"code":"UserErrorObjectLockedByAnotherOperation"}}`)
			break
		}
		rec.Header().Set("Azure-AsyncOperation", "http://arm.local/operations/op-1")
		rec.WriteHeader(202)

	case strings.Contains(path, "/operations/"):
		s.polls++
		status := "InProgress"
		if s.polls > s.pollsUntilOK {
			status = "Succeeded"
		}
		if s.failOperation {
			status = "Failed"
		}
		writeARMJSON(rec, 200, map[string]any{
			"status":     status,
			"properties": map[string]any{"jobId": "job-77"},
		})

	case strings.HasSuffix(path, "/recoveryPoints"):
		writeARMJSON(rec, 200, map[string]any{
			"value": []map[string]any{
				{"name": "rp-2", "id": "/x/rp-2", "properties": map[string]any{"recoveryPointType": "CrashConsistent"}},
				{"name": "rp-1", "id": "/x/rp-1", "properties": map[string]any{"recoveryPointType": "AppConsistent"}},
			},
		})

	case strings.HasSuffix(path, "/backupJobs"):
		jobs := []map[string]any{
			{"name": "job-1", "properties": map[string]any{"status": "Completed"}},
			{"name": "job-2", "properties": map[string]any{"status": "InProgress"}},
		}
		if filter := req.URL.Query().Get("$filter"); strings.Contains(filter, "InProgress") {
			jobs = jobs[1:]
		}
		writeARMJSON(rec, 200, map[string]any{"value": jobs})

	default:
		writeARMJSON(rec, 200, map[string]any{"name": "vault-1", "location": "westeurope"})
	}
	return rec.Result(), nil
}

func writeARMJSON(rec *httptest.ResponseRecorder, status int, v any) {
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(status)
	json.NewEncoder(rec).Encode(v)
}

func newTestVault(stub *stubARM) *Vault {
	return newWithAuth(&Config{
		TenantID:       "t",
		ClientID:       "c",
		ClientSecret:   "s",
		SubscriptionID: "sub-1",
		ResourceGroup:  "rg-prod",
		Vault:          "vault-1",
		BaseURL:        "http://arm.local",
		PollInterval:   time.Millisecond,
		MaxPolls:       5,
	}, nil, stub)
}

func TestTriggerBackupPollsToCompletion(t *testing.T) {
	stub := &stubARM{pollsUntilOK: 2}
	v := newTestVault(stub)

	result, err := v.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID:   "trigger_backup",
		Parameters: map[string]any{"container": "iaasvmcontainer;x;vm01", "item": "vm;x;vm01", "retainDays": 14},
	})
	if err != nil {
		t.Fatalf("trigger_backup: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if stub.backupCalls != 1 {
		t.Fatalf("backup calls = %d, want 1", stub.backupCalls)
	}
	if stub.polls != 3 {
		t.Fatalf("operation polls = %d, want 3", stub.polls)
	}
	props, _ := stub.lastBody["properties"].(map[string]any)
	if props["objectType"] != "IaasVMBackupRequest" {
		t.Fatalf("unexpected backup request body: %v", stub.lastBody)
	}
}

func TestTriggerBackupTimesOutPastPollBudget(t *testing.T) {
	stub := &stubARM{pollsUntilOK: 100}
	v := newTestVault(stub)

	_, err := v.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID:   "trigger_backup",
		Parameters: map[string]any{"container": "c", "item": "i"},
	})
	if coded.CodeOf(err) != coded.CodeTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !coded.IsRetryable(err) {
		t.Fatal("timeout should be retryable")
	}
}

func TestTriggerBackupConflictIsNotRetryable(t *testing.T) {
	stub := &stubARM{conflict: true}
	v := newTestVault(stub)

	_, err := v.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID:   "trigger_backup",
		Parameters: map[string]any{"container": "c", "item": "i"},
	})
	if coded.CodeOf(err) != coded.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if coded.IsRetryable(err) {
		t.Fatal("conflicting job should not be retryable")
	}
}

func TestTriggerRestoreAlternateLocation(t *testing.T) {
	stub := &stubARM{}
	v := newTestVault(stub)

	result, err := v.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID: "trigger_restore",
		Parameters: map[string]any{
			"container":           "c",
			"item":                "i",
			"recoveryPoint":       "rp-2",
			"targetResourceGroup": "rg-restore",
			"targetVMName":        "vm01-restored",
		},
	})
	if err != nil {
		t.Fatalf("trigger_restore: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	props, _ := stub.lastBody["properties"].(map[string]any)
	if props["recoveryType"] != "AlternateLocation" {
		t.Fatalf("recoveryType = %v, want AlternateLocation", props["recoveryType"])
	}
	if props["targetResourceGroupId"] != "/subscriptions/sub-1/resourceGroups/rg-restore" {
		t.Fatalf("unexpected target resource group: %v", props["targetResourceGroupId"])
	}
}

func TestTriggerRestoreFailedOperation(t *testing.T) {
	stub := &stubARM{failOperation: true}
	v := newTestVault(stub)

	_, err := v.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID:   "trigger_restore",
		Parameters: map[string]any{"container": "c", "item": "i", "recoveryPoint": "rp-1"},
	})
	if coded.CodeOf(err) != coded.CodeBadPayload {
		t.Fatalf("expected failed operation error, got %v", err)
	}
}

func TestReadJobsWithStatusFilter(t *testing.T) {
	v := newTestVault(&stubARM{})

	it, err := v.Read(context.Background(), &endpoint.ReadRequest{
		DatasetID: "rsv.jobs",
		Params:    map[string]any{"status": "InProgress"},
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	defer it.Close()

	var names []string
	for it.Next() {
		names = append(names, it.Value()["name"].(string))
	}
	if len(names) != 1 || names[0] != "job-2" {
		t.Fatalf("jobs = %v, want [job-2]", names)
	}
}

func TestReadRecoveryPointsRequiresItem(t *testing.T) {
	v := newTestVault(&stubARM{})

	_, err := v.Read(context.Background(), &endpoint.ReadRequest{DatasetID: "rsv.recoverypoints"})
	if coded.CodeOf(err) != coded.CodeBadPayload {
		t.Fatalf("expected bad payload error, got %v", err)
	}

	it, err := v.Read(context.Background(), &endpoint.ReadRequest{
		DatasetID: "rsv.recoverypoints",
		Params:    map[string]any{"container": "c", "item": "i"},
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	defer it.Close()
	var count int
	for it.Next() {
		count++
	}
	if count != 2 {
		t.Fatalf("recovery points = %d, want 2", count)
	}
}
