package github

import (
	"context"
	"testing"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

func newTestGitHub(t *testing.T) (*GitHub, *StubServer) {
	t.Helper()
	stub := NewStubServer("acme", "platform")
	cfg := &Config{BaseURL: "http://stub.github.local", Token: stub.Token(), Owner: "acme", Repo: "platform"}
	g := newWithTransport(cfg, stub.Transport())
	return g, stub
}

func readAll(t *testing.T, g *GitHub, datasetID string, params map[string]any) []endpoint.Record {
	t.Helper()
	it, err := g.Read(context.Background(), &endpoint.ReadRequest{DatasetID: datasetID, Params: params})
	if err != nil {
		t.Fatalf("read %s: %v", datasetID, err)
	}
	defer it.Close()
	var records []endpoint.Record
	for it.Next() {
		records = append(records, it.Value())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return records
}

func TestReadWorkflowRuns(t *testing.T) {
	g, _ := newTestGitHub(t)

	records := readAll(t, g, "github.workflow_runs", nil)
	if len(records) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(records))
	}
	if records[0]["status"] != "completed" || records[0]["conclusion"] != "success" {
		t.Fatalf("unexpected first run: %v", records[0])
	}
}

func TestReadWorkflowRunsFiltersByBranch(t *testing.T) {
	g, _ := newTestGitHub(t)

	records := readAll(t, g, "github.workflow_runs", map[string]any{"branch": "release"})
	if len(records) != 0 {
		t.Fatalf("expected no runs on release branch, got %d", len(records))
	}
}

func TestReadDeployments(t *testing.T) {
	g, _ := newTestGitHub(t)

	records := readAll(t, g, "github.deployments", nil)
	if len(records) != 1 {
		t.Fatalf("expected 1 deployment, got %d", len(records))
	}
	if records[0]["environment"] != "production" {
		t.Fatalf("unexpected deployment: %v", records[0])
	}
}

func TestDispatchWorkflowAction(t *testing.T) {
	g, stub := newTestGitHub(t)

	result, err := g.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID: "dispatch_workflow",
		Parameters: map[string]any{
			"workflow": "deploy.yml",
			"ref":      "main",
			"inputs":   map[string]any{"environment": "staging"},
		},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}

	dispatches := stub.Dispatches()
	if len(dispatches) != 1 {
		t.Fatalf("expected 1 dispatch recorded, got %d", len(dispatches))
	}
	if dispatches[0]["ref"] != "main" {
		t.Fatalf("unexpected dispatch payload: %v", dispatches[0])
	}
	inputs, _ := dispatches[0]["inputs"].(map[string]any)
	if inputs["environment"] != "staging" {
		t.Fatalf("inputs not forwarded: %v", dispatches[0])
	}
}

func TestDispatchWorkflowMissingRef(t *testing.T) {
	g, _ := newTestGitHub(t)

	result, err := g.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID:   "dispatch_workflow",
		Parameters: map[string]any{"workflow": "deploy.yml"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure without ref")
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "ref" {
		t.Fatalf("expected missing_field error on ref, got %v", result.Errors)
	}
}

func TestCreateDeploymentAction(t *testing.T) {
	g, _ := newTestGitHub(t)

	result, err := g.ExecuteAction(context.Background(), &endpoint.ActionRequest{
		ActionID:   "create_deployment",
		Parameters: map[string]any{"ref": "v1.5.0", "environment": "staging"},
	})
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if result.Data["environment"] != "staging" {
		t.Fatalf("unexpected result data: %v", result.Data)
	}

	records := readAll(t, g, "github.deployments", nil)
	if len(records) != 2 {
		t.Fatalf("expected 2 deployments after create, got %d", len(records))
	}
}

func TestBadTokenIsAuthError(t *testing.T) {
	stub := NewStubServer("acme", "platform")
	cfg := &Config{BaseURL: "http://stub.github.local", Token: "wrong", Owner: "acme", Repo: "platform"}
	g := newWithTransport(cfg, stub.Transport())

	_, err := g.Read(context.Background(), &endpoint.ReadRequest{DatasetID: "github.workflows"})
	if coded.CodeOf(err) != coded.CodeAuthInvalid {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	g, _ := newTestGitHub(t)

	result, err := g.ValidateConfig(context.Background(), nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got %q", result.Message)
	}
}
