package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu         sync.Mutex
	ledger     map[string]*LedgerEntry   // key: scope + "\x00" + itemID
	tickets    map[string]*TicketMapping // key: dedupeKey
	watermarks map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledger:     make(map[string]*LedgerEntry),
		tickets:    make(map[string]*TicketMapping),
		watermarks: make(map[string]string),
	}
}

func (s *MemoryStore) Ledger() TransferLedger { return (*memLedger)(s) }
func (s *MemoryStore) Tickets() TicketMap     { return (*memTickets)(s) }
func (s *MemoryStore) Watermarks() Watermarks { return (*memWatermarks)(s) }
func (s *MemoryStore) Close() error           { return nil }

func ledgerKey(scope, itemID string) string { return scope + "\x00" + itemID }

type memLedger MemoryStore

func (l *memLedger) IsCopied(ctx context.Context, scope, itemID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.ledger[ledgerKey(scope, itemID)]; ok {
		return e.Copied, nil
	}
	return false, nil
}

func (l *memLedger) MarkCopied(ctx context.Context, entry *LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := *entry
	e.Copied = true
	e.LastError = ""
	e.UpdatedAt = time.Now()
	l.ledger[ledgerKey(entry.Scope, entry.ItemID)] = &e
	return nil
}

func (l *memLedger) MarkFailed(ctx context.Context, entry *LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := *entry
	e.Copied = false
	e.UpdatedAt = time.Now()
	l.ledger[ledgerKey(entry.Scope, entry.ItemID)] = &e
	return nil
}

func (l *memLedger) Stats(ctx context.Context, scope string) (int64, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var copied, failed int64
	for _, e := range l.ledger {
		if e.Scope != scope {
			continue
		}
		if e.Copied {
			copied++
		} else {
			failed++
		}
	}
	return copied, failed, nil
}

type memTickets MemoryStore

func (t *memTickets) Get(ctx context.Context, dedupeKey string) (*TicketMapping, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.tickets[dedupeKey]; ok && !m.Resolved {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (t *memTickets) Put(ctx context.Context, m *TicketMapping) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *m
	cp.Resolved = false
	if existing, ok := t.tickets[m.DedupeKey]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	t.tickets[m.DedupeKey] = &cp
	return nil
}

func (t *memTickets) Resolve(ctx context.Context, dedupeKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.tickets[dedupeKey]; ok {
		m.Resolved = true
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (t *memTickets) Active(ctx context.Context) ([]*TicketMapping, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*TicketMapping
	for _, m := range t.tickets {
		if !m.Resolved {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memWatermarks MemoryStore

func (w *memWatermarks) Get(ctx context.Context, datasetID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watermarks[datasetID], nil
}

func (w *memWatermarks) Set(ctx context.Context, datasetID, watermark string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watermarks[datasetID] = watermark
	return nil
}
