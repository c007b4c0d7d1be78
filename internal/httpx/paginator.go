package httpx

import (
	"context"
	"encoding/json"
	"net/url"
)

// Paginator handles API pagination.
type Paginator interface {
	// NextPage returns the request for the next page, or nil if done.
	NextPage(ctx context.Context, resp *Response) (*Request, error)
}

// ODataPaginator follows server-issued continuation URLs. Microsoft Graph
// uses "@odata.nextLink", ARM list APIs use "nextLink"; both hand back a
// full URL, so subsequent requests bypass BaseURL entirely.
type ODataPaginator struct {
	Path        string
	Query       url.Values
	NextLinkKey string // JSON key holding the continuation URL (default: "@odata.nextLink")
}

// NewODataPaginator creates a paginator for nextLink-style APIs.
func NewODataPaginator(path string, query url.Values) *ODataPaginator {
	return &ODataPaginator{
		Path:        path,
		Query:       query,
		NextLinkKey: "@odata.nextLink",
	}
}

// FirstPage returns the first page request.
func (p *ODataPaginator) FirstPage() *Request {
	return &Request{
		Method: "GET",
		Path:   p.Path,
		Query:  p.Query,
	}
}

// NextPage returns a request against the continuation URL, or nil when the
// response carries no next link.
func (p *ODataPaginator) NextPage(ctx context.Context, resp *Response) (*Request, error) {
	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, err
	}

	if link, ok := data[p.NextLinkKey].(string); ok && link != "" {
		return &Request{Method: "GET", URL: link}, nil
	}

	return nil, nil
}
