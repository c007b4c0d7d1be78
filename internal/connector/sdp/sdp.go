// Package sdp drives ManageEngine ServiceDesk Plus. The v3 API takes a
// technician key header and form-encoded bodies where the JSON payload
// rides in a single input_data field; responses carry their real outcome
// in response_status regardless of the HTTP status.
package sdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
	"github.com/opsrelay/relay-core/internal/httpx"
)

// Config holds ServiceDesk Plus connection settings.
type Config struct {
	BaseURL       string // e.g. https://sdp.example.com
	TechnicianKey string
}

// SDP is the ServiceDesk Plus connector.
type SDP struct {
	config *Config
	client *httpx.Client
}

var (
	_ endpoint.SourceEndpoint = (*SDP)(nil)
	_ endpoint.ActionEndpoint = (*SDP)(nil)
)

// New creates the connector.
func New(cfg *Config) (*SDP, error) {
	if cfg.BaseURL == "" || cfg.TechnicianKey == "" {
		return nil, fmt.Errorf("baseUrl and technicianKey are required")
	}
	return newWithTransport(cfg, nil), nil
}

func newWithTransport(cfg *Config, transport http.RoundTripper) *SDP {
	return &SDP{
		config: cfg,
		client: httpx.NewClient(&httpx.ClientConfig{
			BaseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
			Headers:   map[string]string{"authtoken": cfg.TechnicianKey},
			Transport: transport,
		}),
	}
}

// ID returns the connector template ID.
func (s *SDP) ID() string { return "itsm.sdp" }

// Close releases resources.
func (s *SDP) Close() error { return nil }

func (s *SDP) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "itsm.sdp",
		Family:      "itsm",
		Title:       "ServiceDesk Plus",
		Vendor:      "ManageEngine",
		Description: "Request lifecycle management via the v3 REST API",
		Categories:  []string{"itsm", "ticketing"},
		Protocols:   []string{"REST"},
		Fields: []*endpoint.FieldDescriptor{
			{Key: "baseUrl", Label: "Server URL", ValueType: "string", Required: true},
			{Key: "technicianKey", Label: "Technician Key", ValueType: "password", Required: true, Sensitive: true},
		},
	}
}

func (s *SDP) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{SupportsFull: true, SupportsActions: true, DefaultFetchSize: 100}
}

func (s *SDP) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	if _, err := s.ListOpenRequests(ctx, 1); err != nil {
		return &endpoint.ValidationResult{Valid: false, Message: fmt.Sprintf("probe failed: %v", err)}, nil
	}
	return &endpoint.ValidationResult{Valid: true, Message: "technician key accepted"}, nil
}

// Request is one SDP request (ticket).
type Request struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Status      string `json:"-"`
}

// responseStatus is the envelope SDP wraps every response in.
type responseStatus struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Messages   []struct {
		Message string `json:"message"`
	} `json:"messages"`
}

const statusSuccess = 2000

func (rs *responseStatus) err() error {
	if rs.StatusCode == statusSuccess {
		return nil
	}
	var msgs []string
	for _, m := range rs.Messages {
		msgs = append(msgs, m.Message)
	}
	msg := strings.Join(msgs, "; ")
	switch rs.StatusCode {
	case 4001:
		return coded.Errorf(coded.CodeAuthInvalid, false, "sdp status %d: %s", rs.StatusCode, msg)
	case 4007:
		return coded.Errorf(coded.CodeNotFound, false, "sdp status %d: %s", rs.StatusCode, msg)
	}
	return coded.Errorf(coded.CodeBadPayload, false, "sdp status %d: %s", rs.StatusCode, msg)
}

// call form-encodes input_data and decodes the response envelope into out.
func (s *SDP) call(ctx context.Context, method, path string, inputData map[string]any, out any) error {
	var body *strings.Reader
	headers := map[string]string{}
	if inputData != nil {
		payload, err := json.Marshal(inputData)
		if err != nil {
			return fmt.Errorf("marshal input_data: %w", err)
		}
		form := url.Values{"input_data": {string(payload)}}
		body = strings.NewReader(form.Encode())
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	} else {
		body = strings.NewReader("")
	}

	resp, err := s.client.Do(ctx, &httpx.Request{
		Method:  method,
		Path:    path,
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		return err
	}

	var envelope struct {
		ResponseStatus json.RawMessage `json:"response_status"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return coded.Wrap(coded.CodeBadPayload, false, err)
	}
	if len(envelope.ResponseStatus) > 0 {
		// List endpoints return an array of statuses, single operations
		// an object. Accept both.
		var rs responseStatus
		if envelope.ResponseStatus[0] == '[' {
			var list []responseStatus
			if err := json.Unmarshal(envelope.ResponseStatus, &list); err != nil {
				return coded.Wrap(coded.CodeBadPayload, false, err)
			}
			if len(list) > 0 {
				rs = list[0]
			}
		} else if err := json.Unmarshal(envelope.ResponseStatus, &rs); err != nil {
			return coded.Wrap(coded.CodeBadPayload, false, err)
		}
		if err := rs.err(); err != nil {
			return err
		}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return coded.Wrap(coded.CodeBadPayload, false, err)
		}
	}
	return nil
}

// CreateRequest opens a new request and returns its ID.
func (s *SDP) CreateRequest(ctx context.Context, subject, description, priority, group string) (string, error) {
	request := map[string]any{
		"subject":     subject,
		"description": description,
	}
	if priority != "" {
		request["priority"] = map[string]any{"name": priority}
	}
	if group != "" {
		request["group"] = map[string]any{"name": group}
	}

	var result struct {
		Request struct {
			ID string `json:"id"`
		} `json:"request"`
	}
	err := s.call(ctx, http.MethodPost, "/api/v3/requests", map[string]any{"request": request}, &result)
	if err != nil {
		return "", err
	}
	if result.Request.ID == "" {
		return "", coded.Errorf(coded.CodeBadPayload, false, "create returned no request id")
	}
	return result.Request.ID, nil
}

// AddNote appends a worknote to a request.
func (s *SDP) AddNote(ctx context.Context, requestID, note string) error {
	return s.call(ctx, http.MethodPost, "/api/v3/requests/"+requestID+"/notes", map[string]any{
		"note": map[string]any{"description": note},
	}, nil)
}

// CloseRequest closes a request with closure comments.
func (s *SDP) CloseRequest(ctx context.Context, requestID, comments string) error {
	return s.call(ctx, http.MethodPut, "/api/v3/requests/"+requestID+"/close", map[string]any{
		"request": map[string]any{
			"closure_info": map[string]any{
				"closure_comments": comments,
				"closure_code":     map[string]any{"name": "Resolved"},
			},
		},
	}, nil)
}

// UpdateRequest patches arbitrary request fields.
func (s *SDP) UpdateRequest(ctx context.Context, requestID string, fields map[string]any) error {
	return s.call(ctx, http.MethodPut, "/api/v3/requests/"+requestID, map[string]any{"request": fields}, nil)
}

// UpdatePriority changes a request's priority.
func (s *SDP) UpdatePriority(ctx context.Context, requestID, priority string) error {
	return s.UpdateRequest(ctx, requestID, map[string]any{
		"priority": map[string]any{"name": priority},
	})
}

// ListOpenRequests returns open requests, newest first.
func (s *SDP) ListOpenRequests(ctx context.Context, limit int) ([]endpoint.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	listInfo := map[string]any{
		"list_info": map[string]any{
			"row_count":  limit,
			"sort_field": "created_time",
			"sort_order": "desc",
			"search_criteria": map[string]any{
				"field":     "status.name",
				"condition": "is",
				"value":     "Open",
			},
		},
	}
	payload, err := json.Marshal(listInfo)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Get(ctx, "/api/v3/requests", url.Values{"input_data": {string(payload)}})
	if err != nil {
		return nil, err
	}
	var result struct {
		Requests []map[string]any `json:"requests"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	records := make([]endpoint.Record, 0, len(result.Requests))
	for _, r := range result.Requests {
		records = append(records, endpoint.Record(r))
	}
	return records, nil
}
