package endpoint

import (
	"context"
	"strings"
	"testing"
)

type nullEndpoint struct{}

func (nullEndpoint) ID() string                 { return "test.null" }
func (nullEndpoint) Close() error               { return nil }
func (nullEndpoint) GetDescriptor() *Descriptor { return &Descriptor{ID: "test.null"} }
func (nullEndpoint) GetCapabilities() *Capabilities {
	return &Capabilities{}
}
func (nullEndpoint) ValidateConfig(ctx context.Context, config map[string]any) (*ValidationResult, error) {
	return &ValidationResult{Valid: true}, nil
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	r.Register("test.null", func(config map[string]any) (Endpoint, error) {
		return nullEndpoint{}, nil
	})

	ep, err := r.Create("test.null", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ep.ID() != "test.null" {
		t.Errorf("ID = %q, want test.null", ep.ID())
	}
	if ids := r.List(); len(ids) != 1 || ids[0] != "test.null" {
		t.Errorf("List = %v, want [test.null]", ids)
	}
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	factory := func(config map[string]any) (Endpoint, error) { return nullEndpoint{}, nil }
	r.Register("test.null", factory)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register("test.null", factory)
}

func TestRegistryUnknownTemplate(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("no.such.template", nil)
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
	if !strings.Contains(err.Error(), "no.such.template") {
		t.Errorf("error should name the template: %v", err)
	}
}

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator([]Record{{"n": 1}, {"n": 2}})
	defer it.Close()

	var got []int
	for it.Next() {
		got = append(got, it.Value()["n"].(int))
	}
	if it.Err() != nil {
		t.Fatalf("Err: %v", it.Err())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("values = %v, want [1 2]", got)
	}
}
