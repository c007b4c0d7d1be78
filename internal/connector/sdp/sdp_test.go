package sdp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// stubSDP decodes input_data from the form body so tests can assert on
// the payload the connector actually sent.
type stubSDP struct {
	lastInputData map[string]any
	lastPath      string
	lastMethod    string
}

func (s *stubSDP) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("authtoken") != "tech-key" {
		return sdpResponse(200, `{"response_status":{"status_code":4001,"messages":[{"message":"invalid key"}]}}`), nil
	}

	s.lastPath = req.URL.Path
	s.lastMethod = req.Method
	s.lastInputData = nil
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		if form, err := url.ParseQuery(string(body)); err == nil {
			if raw := form.Get("input_data"); raw != "" {
				_ = json.Unmarshal([]byte(raw), &s.lastInputData)
			}
		}
	}

	switch {
	case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/api/v3/requests"):
		return sdpResponse(200, `{
			"response_status":{"status_code":2000,"status":"success"},
			"request":{"id":"2041"}
		}`), nil

	case strings.HasSuffix(req.URL.Path, "/notes"):
		return sdpResponse(200, `{"response_status":{"status_code":2000}}`), nil

	case strings.HasSuffix(req.URL.Path, "/close"):
		return sdpResponse(200, `{"response_status":{"status_code":2000}}`), nil

	case strings.HasSuffix(req.URL.Path, "/requests/9999"):
		return sdpResponse(200, `{"response_status":{"status_code":4007,"messages":[{"message":"request not found"}]}}`), nil

	case req.Method == http.MethodPut && strings.HasPrefix(req.URL.Path, "/api/v3/requests/"):
		return sdpResponse(200, `{"response_status":{"status_code":2000}}`), nil

	case req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "/api/v3/requests"):
		return sdpResponse(200, `{
			"response_status":[{"status_code":2000}],
			"requests":[{"id":"2040","subject":"Disk alert on web01"},{"id":"2041","subject":"HTTP down"}]
		}`), nil
	}
	return sdpResponse(404, `{"response_status":{"status_code":4007}}`), nil
}

func sdpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newStubSDP(stub *stubSDP) *SDP {
	return newWithTransport(&Config{BaseURL: "http://sdp.local", TechnicianKey: "tech-key"}, stub)
}

func TestCreateRequestEncodesInputData(t *testing.T) {
	stub := &stubSDP{}
	s := newStubSDP(stub)

	id, err := s.CreateRequest(context.Background(), "HTTP down on web01", "connection refused", "High", "Infrastructure")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if id != "2041" {
		t.Errorf("request id = %q, want 2041", id)
	}

	request, ok := stub.lastInputData["request"].(map[string]any)
	if !ok {
		t.Fatalf("input_data = %v, want request object", stub.lastInputData)
	}
	if request["subject"] != "HTTP down on web01" {
		t.Errorf("subject = %v", request["subject"])
	}
	priority, _ := request["priority"].(map[string]any)
	if priority["name"] != "High" {
		t.Errorf("priority = %v", request["priority"])
	}
}

func TestAddNoteAndClose(t *testing.T) {
	stub := &stubSDP{}
	s := newStubSDP(stub)
	ctx := context.Background()

	if err := s.AddNote(ctx, "2041", "state changed to CRITICAL"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if stub.lastPath != "/api/v3/requests/2041/notes" {
		t.Errorf("note path = %q", stub.lastPath)
	}

	if err := s.CloseRequest(ctx, "2041", "alert recovered"); err != nil {
		t.Fatalf("CloseRequest: %v", err)
	}
	if stub.lastMethod != http.MethodPut || !strings.HasSuffix(stub.lastPath, "/2041/close") {
		t.Errorf("close call = %s %s", stub.lastMethod, stub.lastPath)
	}
	request, _ := stub.lastInputData["request"].(map[string]any)
	closure, _ := request["closure_info"].(map[string]any)
	if closure["closure_comments"] != "alert recovered" {
		t.Errorf("closure_info = %v", closure)
	}
}

func TestUpdatePriority(t *testing.T) {
	stub := &stubSDP{}
	s := newStubSDP(stub)

	if err := s.UpdatePriority(context.Background(), "2041", "High"); err != nil {
		t.Fatalf("UpdatePriority: %v", err)
	}
	if stub.lastMethod != http.MethodPut || stub.lastPath != "/api/v3/requests/2041" {
		t.Errorf("update call = %s %s", stub.lastMethod, stub.lastPath)
	}
	request, _ := stub.lastInputData["request"].(map[string]any)
	priority, _ := request["priority"].(map[string]any)
	if priority["name"] != "High" {
		t.Errorf("priority = %v", request["priority"])
	}
}

func TestResponseStatusFailureBecomesCodedError(t *testing.T) {
	s := newStubSDP(&stubSDP{})

	err := s.UpdateRequest(context.Background(), "9999", map[string]any{"subject": "x"})
	if coded.CodeOf(err) != coded.CodeNotFound {
		t.Errorf("error code = %q, want %q", coded.CodeOf(err), coded.CodeNotFound)
	}
}

func TestInvalidTechnicianKey(t *testing.T) {
	s := newWithTransport(&Config{BaseURL: "http://sdp.local", TechnicianKey: "wrong"}, &stubSDP{})

	_, err := s.CreateRequest(context.Background(), "subject", "", "", "")
	if coded.CodeOf(err) != coded.CodeAuthInvalid {
		t.Errorf("error code = %q, want %q", coded.CodeOf(err), coded.CodeAuthInvalid)
	}
}

func TestReadOpenRequests(t *testing.T) {
	s := newStubSDP(&stubSDP{})

	it, err := s.Read(context.Background(), &endpoint.ReadRequest{DatasetID: "sdp.requests"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer it.Close()

	var subjects []string
	for it.Next() {
		subjects = append(subjects, it.Value()["subject"].(string))
	}
	if len(subjects) != 2 || subjects[0] != "Disk alert on web01" {
		t.Errorf("subjects = %v", subjects)
	}
}
