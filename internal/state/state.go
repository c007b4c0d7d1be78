// Package state persists run state for the engines: the transfer ledger
// (per-file copied flags), the alert→ticket mapping, and dataset watermarks.
// A Postgres implementation backs real runs; the in-memory implementation
// backs tests and dry runs.
package state

import (
	"context"
	"time"
)

// LedgerEntry is one file's row in the transfer ledger.
type LedgerEntry struct {
	Scope     string // run scope, e.g. "drive:b!abc:/Shared Documents"
	ItemID    string // source item ID (stable across runs)
	Path      string
	SizeBytes int64
	Copied    bool
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// TransferLedger records per-file copy outcomes. MarkCopied is the single
// idempotency point: a fresh run with the same scope skips copied items.
type TransferLedger interface {
	// IsCopied reports whether the item was already copied in this scope.
	IsCopied(ctx context.Context, scope, itemID string) (bool, error)

	// MarkCopied upserts the item as copied.
	MarkCopied(ctx context.Context, entry *LedgerEntry) error

	// MarkFailed upserts the item as failed with the attempt count and error.
	MarkFailed(ctx context.Context, entry *LedgerEntry) error

	// Stats returns (copied, failed) counts for a scope.
	Stats(ctx context.Context, scope string) (copied int64, failed int64, err error)
}

// TicketMapping is one alert's row in the alert→ticket map.
type TicketMapping struct {
	DedupeKey  string // "{host}/{service}"
	TicketID   string
	AlertState string // "WARNING", "CRITICAL", ...
	Resolved   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TicketMap persists which ticket tracks which alert.
type TicketMap interface {
	// Get returns the active (unresolved) mapping for a dedupe key, or nil.
	Get(ctx context.Context, dedupeKey string) (*TicketMapping, error)

	// Put upserts a mapping.
	Put(ctx context.Context, m *TicketMapping) error

	// Resolve marks a mapping resolved.
	Resolve(ctx context.Context, dedupeKey string) error

	// Active returns all unresolved mappings.
	Active(ctx context.Context) ([]*TicketMapping, error)
}

// Watermarks tracks the last committed watermark per dataset.
type Watermarks interface {
	Get(ctx context.Context, datasetID string) (string, error)
	Set(ctx context.Context, datasetID, watermark string) error
}

// Store bundles the three state surfaces behind one connection.
type Store interface {
	Ledger() TransferLedger
	Tickets() TicketMap
	Watermarks() Watermarks
	Close() error
}
