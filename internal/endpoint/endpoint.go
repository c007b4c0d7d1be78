// Package endpoint defines the contracts every relay connector implements.
//
// Architecture:
//
//	Endpoint        - Base contract (ID, Validate, Capabilities, Descriptor)
//	SourceEndpoint  - Read data (ListDatasets, GetSchema, Read)
//	SinkEndpoint    - Write data (WriteRaw, Finalize, Watermark)
//	ActionEndpoint  - Control-plane actions (ListActions, Execute)
//
// Connectors compose the additional interfaces they actually support. A
// monitoring source only implements SourceEndpoint; an ITSM connector is
// mostly an ActionEndpoint; the archive sink is a SinkEndpoint.
package endpoint

import "context"

// Endpoint is the base contract that all relay connectors must implement.
type Endpoint interface {
	// ID returns the unique template identifier (e.g. "graph.sharepoint", "itsm.sdp").
	ID() string

	// ValidateConfig tests configuration validity and connectivity.
	ValidateConfig(ctx context.Context, config map[string]any) (*ValidationResult, error)

	// GetCapabilities returns the set of supported operations.
	GetCapabilities() *Capabilities

	// GetDescriptor returns metadata about this endpoint type.
	GetDescriptor() *Descriptor

	// Close releases any resources held by the endpoint.
	Close() error
}

// SourceEndpoint can read data from an external system.
type SourceEndpoint interface {
	Endpoint

	// ListDatasets returns available datasets for this endpoint.
	ListDatasets(ctx context.Context) ([]*Dataset, error)

	// GetSchema returns the schema for a specific dataset.
	GetSchema(ctx context.Context, datasetID string) (*Schema, error)

	// Read streams records from a dataset.
	// Returns an Iterator that must be closed after use.
	Read(ctx context.Context, req *ReadRequest) (Iterator[Record], error)
}

// SinkEndpoint can write data to an external system.
type SinkEndpoint interface {
	Endpoint

	// WriteRaw writes records to the sink.
	WriteRaw(ctx context.Context, req *WriteRequest) (*WriteResult, error)

	// Finalize completes a write operation for a dataset and load date.
	Finalize(ctx context.Context, datasetID string, loadDate string) (*FinalizeResult, error)

	// GetLatestWatermark returns the last committed watermark for incremental runs.
	GetLatestWatermark(ctx context.Context, datasetID string) (string, error)
}

// ActionEndpoint can execute control-plane actions.
type ActionEndpoint interface {
	Endpoint

	// ListActions returns available actions for this endpoint.
	ListActions(ctx context.Context) ([]*ActionDescriptor, error)

	// GetActionSchema returns the input/output schema for an action.
	GetActionSchema(ctx context.Context, actionID string) (*ActionSchema, error)

	// ExecuteAction runs an action with the given parameters.
	ExecuteAction(ctx context.Context, req *ActionRequest) (*ActionResult, error)
}
