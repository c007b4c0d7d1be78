package httpx

import (
	"context"
	"net/url"
	"testing"
)

func TestODataPaginator_FollowsNextLink(t *testing.T) {
	p := NewODataPaginator("/drives/d1/root/children", nil)

	first := p.FirstPage()
	if first.Path != "/drives/d1/root/children" {
		t.Fatalf("unexpected first path %q", first.Path)
	}

	withLink := &Response{Body: []byte(`{"value": [], "@odata.nextLink": "https://graph.example.com/v1.0/next?skiptoken=abc"}`)}
	next, err := p.NextPage(context.Background(), withLink)
	if err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if next == nil || next.URL != "https://graph.example.com/v1.0/next?skiptoken=abc" {
		t.Fatalf("expected continuation URL, got %+v", next)
	}

	final := &Response{Body: []byte(`{"value": []}`)}
	next, err = p.NextPage(context.Background(), final)
	if err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if next != nil {
		t.Fatalf("expected termination, got %+v", next)
	}
}

func TestODataPaginator_CustomKey(t *testing.T) {
	query := url.Values{"api-version": {"2023-04-01"}}
	p := NewODataPaginator("/vault/backupJobs", query)
	p.NextLinkKey = "nextLink"

	first := p.FirstPage()
	if first.Query.Get("api-version") != "2023-04-01" {
		t.Fatalf("first page lost query: %+v", first.Query)
	}

	resp := &Response{Body: []byte(`{"value": [], "nextLink": "https://management.azure.com/page2"}`)}
	next, err := p.NextPage(context.Background(), resp)
	if err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if next == nil || next.URL != "https://management.azure.com/page2" {
		t.Fatalf("expected ARM continuation URL, got %+v", next)
	}
}
