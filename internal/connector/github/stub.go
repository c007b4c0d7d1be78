package github

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// StubServer serves a small fixed GitHub repository in process for demos
// and tests. Requests never leave the process: the connector's transport
// dispatches straight into the stub's mux.
type StubServer struct {
	owner string
	repo  string
	token string
	mux   *http.ServeMux

	mu          sync.Mutex
	dispatches  []map[string]any
	deployments []map[string]any
}

// NewStubServer builds a stub with seeded workflows, runs and deployments.
func NewStubServer(owner, repo string) *StubServer {
	s := &StubServer{
		owner: owner,
		repo:  repo,
		token: "stub-token",
		mux:   http.NewServeMux(),
		deployments: []map[string]any{
			{"id": float64(7001), "environment": "production", "ref": "v1.4.0", "created_at": "2026-08-01T09:00:00Z"},
		},
	}
	s.routes()
	return s
}

// Token returns the bearer token the stub accepts.
func (s *StubServer) Token() string { return s.token }

// Transport returns a RoundTripper that serves requests from the stub.
func (s *StubServer) Transport() http.RoundTripper {
	return stubRoundTripper{server: s}
}

// Dispatches returns the workflow dispatch payloads received so far.
func (s *StubServer) Dispatches() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.dispatches))
	copy(out, s.dispatches)
	return out
}

func (s *StubServer) routes() {
	base := fmt.Sprintf("/repos/%s/%s", s.owner, s.repo)

	s.mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"full_name":      s.owner + "/" + s.repo,
			"default_branch": "main",
		})
	})

	s.mux.HandleFunc(base+"/actions/workflows", func(w http.ResponseWriter, r *http.Request) {
		workflows := []map[string]any{
			{"id": float64(101), "name": "CI", "path": ".github/workflows/ci.yml", "state": "active"},
			{"id": float64(102), "name": "Deploy", "path": ".github/workflows/deploy.yml", "state": "active"},
		}
		writeJSON(w, 200, map[string]any{"total_count": len(workflows), "workflows": workflows})
	})

	s.mux.HandleFunc(base+"/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		runs := []map[string]any{
			{"id": float64(9001), "name": "CI", "head_branch": "main", "status": "completed", "conclusion": "success", "created_at": "2026-08-02T10:00:00Z"},
			{"id": float64(9002), "name": "Deploy", "head_branch": "main", "status": "in_progress", "conclusion": nil, "created_at": "2026-08-02T10:05:00Z"},
		}
		if branch := r.URL.Query().Get("branch"); branch != "" {
			var filtered []map[string]any
			for _, run := range runs {
				if run["head_branch"] == branch {
					filtered = append(filtered, run)
				}
			}
			runs = filtered
		}
		writeJSON(w, 200, map[string]any{"total_count": len(runs), "workflow_runs": runs})
	})

	s.mux.HandleFunc(base+"/deployments", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			dep := map[string]any{
				"id":          float64(7000 + len(s.deployments) + 1),
				"environment": body["environment"],
				"ref":         body["ref"],
				"created_at":  "2026-08-02T11:00:00Z",
			}
			s.deployments = append(s.deployments, dep)
			writeJSON(w, 201, dep)
		default:
			writeJSON(w, 200, s.deployments)
		}
	})

	s.mux.HandleFunc(base+"/actions/workflows/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if ref, _ := body["ref"].(string); ref == "" {
			writeJSON(w, 422, map[string]any{"message": "ref is required"})
			return
		}
		s.mu.Lock()
		s.dispatches = append(s.dispatches, body)
		s.mu.Unlock()
		w.WriteHeader(204)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type stubRoundTripper struct {
	server *StubServer
}

func (t stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if auth := req.Header.Get("Authorization"); auth != "Bearer "+t.server.token {
		rec := httptest.NewRecorder()
		writeJSON(rec, 401, map[string]any{"message": "Bad credentials"})
		return rec.Result(), nil
	}

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))

	rec := httptest.NewRecorder()
	t.server.mux.ServeHTTP(rec, clone)
	return rec.Result(), nil
}
