package endpoint

// Record represents a single data record as key-value pairs.
type Record = map[string]any

// Iterator provides streaming access to records.
type Iterator[T any] interface {
	// Next advances to the next record. Returns false when done or on error.
	Next() bool

	// Value returns the current record. Only valid after Next() returns true.
	Value() T

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources. Must be called when done.
	Close() error
}

// SliceIterator adapts a pre-built record slice to the Iterator interface.
// Connectors that fetch a bounded result set in one call use this instead of
// hand-rolling buffering logic.
type SliceIterator[T any] struct {
	items []T
	idx   int
	cur   T
}

// NewSliceIterator wraps items in an Iterator.
func NewSliceIterator[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (it *SliceIterator[T]) Next() bool {
	if it.idx >= len(it.items) {
		return false
	}
	it.cur = it.items[it.idx]
	it.idx++
	return true
}

func (it *SliceIterator[T]) Value() T     { return it.cur }
func (it *SliceIterator[T]) Err() error   { return nil }
func (it *SliceIterator[T]) Close() error { return nil }

// --- Validation Types ---

type ValidationResult struct {
	Valid           bool
	Message         string
	DetectedVersion string
}

// --- Capabilities ---

type Capabilities struct {
	// Source capabilities
	SupportsFull        bool
	SupportsIncremental bool
	SupportsPreview     bool
	SupportsMetadata    bool

	// Sink capabilities
	SupportsWrite     bool
	SupportsFinalize  bool
	SupportsWatermark bool

	// Action capabilities
	SupportsActions bool

	DefaultFetchSize int
}

// --- Descriptor Types ---

// Descriptor describes an endpoint template for discovery and UIs.
type Descriptor struct {
	ID          string
	Family      string // "graph", "azure", "itsm", "monitor", "dir", "net", "object"
	Title       string
	Vendor      string
	Description string
	Categories  []string
	Protocols   []string
	DocsURL     string
	Fields      []*FieldDescriptor
}

// FieldDescriptor describes one configuration field of an endpoint template.
type FieldDescriptor struct {
	Key         string
	Label       string
	ValueType   string // "string", "int", "bool", "password"
	Required    bool
	Sensitive   bool
	Placeholder string
	Description string
}

// --- Dataset Types ---

type Dataset struct {
	ID                  string
	Name                string
	Kind                string // "table", "tree", "stream"
	SupportsIncremental bool
	IncrementalColumn   string
	PrimaryKeys         []string
}

// --- Schema Types ---

type Schema struct {
	Fields []*FieldDefinition
}

type FieldDefinition struct {
	Name     string
	DataType string
	Nullable bool
	Comment  string
	Position int
}

// --- Read Types ---

type ReadRequest struct {
	DatasetID string
	Limit     int64
	// Params carries dataset-specific read parameters (e.g. networkId, path).
	Params map[string]any
}

// --- Write Types ---

type WriteRequest struct {
	DatasetID string
	LoadDate  string
	RunID     string
	Schema    *Schema
	Records   []Record
}

type WriteResult struct {
	RowsWritten int64
	Path        string
}

type FinalizeResult struct {
	FinalPath string
}

// --- Action Types ---

type ActionDescriptor struct {
	ID           string
	Name         string
	Description  string
	Category     string // "create", "update", "delete", "execute"
	RequiresAuth bool
	Tags         []string
}

type ActionSchema struct {
	ActionID     string
	InputFields  []*ActionField
	OutputFields []*ActionField
}

type ActionField struct {
	Name        string
	Label       string
	DataType    string
	Required    bool
	Default     any
	Description string
	Enum        []string
}

type ActionRequest struct {
	ActionID   string
	Parameters map[string]any
	DryRun     bool
}

type ActionResult struct {
	Success  bool
	Message  string
	Data     map[string]any
	Errors   []ActionError
	Warnings []string
}

type ActionError struct {
	Code    string
	Field   string
	Message string
}
