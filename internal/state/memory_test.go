package state

import (
	"context"
	"testing"
)

func TestMemoryLedger_CopiedFlagRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore().Ledger()

	copied, err := ledger.IsCopied(ctx, "scope-a", "item-1")
	if err != nil || copied {
		t.Fatalf("fresh item: copied=%v err=%v", copied, err)
	}

	if err := ledger.MarkFailed(ctx, &LedgerEntry{Scope: "scope-a", ItemID: "item-1", Attempts: 3, LastError: "timeout"}); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	copied, _ = ledger.IsCopied(ctx, "scope-a", "item-1")
	if copied {
		t.Fatal("failed item reported copied")
	}

	if err := ledger.MarkCopied(ctx, &LedgerEntry{Scope: "scope-a", ItemID: "item-1", SizeBytes: 42, Attempts: 4}); err != nil {
		t.Fatalf("MarkCopied: %v", err)
	}
	copied, _ = ledger.IsCopied(ctx, "scope-a", "item-1")
	if !copied {
		t.Fatal("copied item not reported copied")
	}

	// Scope isolation: same item ID in another scope stays uncopied.
	copied, _ = ledger.IsCopied(ctx, "scope-b", "item-1")
	if copied {
		t.Fatal("scope leak in ledger")
	}

	c, f, err := ledger.Stats(ctx, "scope-a")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if c != 1 || f != 0 {
		t.Fatalf("Stats = (%d, %d), want (1, 0)", c, f)
	}
}

func TestMemoryTickets_ResolveLifecycle(t *testing.T) {
	ctx := context.Background()
	tickets := NewMemoryStore().Tickets()

	if err := tickets.Put(ctx, &TicketMapping{DedupeKey: "web01/HTTP", TicketID: "REQ-100", AlertState: "CRITICAL"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	m, err := tickets.Get(ctx, "web01/HTTP")
	if err != nil || m == nil {
		t.Fatalf("Get: m=%v err=%v", m, err)
	}
	if m.TicketID != "REQ-100" || m.AlertState != "CRITICAL" {
		t.Fatalf("unexpected mapping %+v", m)
	}

	if err := tickets.Resolve(ctx, "web01/HTTP"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m, _ = tickets.Get(ctx, "web01/HTTP")
	if m != nil {
		t.Fatalf("resolved mapping still active: %+v", m)
	}

	active, _ := tickets.Active(ctx)
	if len(active) != 0 {
		t.Fatalf("expected no active mappings, got %d", len(active))
	}
}

func TestMemoryWatermarks(t *testing.T) {
	ctx := context.Background()
	wm := NewMemoryStore().Watermarks()

	got, err := wm.Get(ctx, "ukg.dataview")
	if err != nil || got != "" {
		t.Fatalf("empty watermark: %q %v", got, err)
	}
	if err := wm.Set(ctx, "ukg.dataview", "2026-08-29"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ = wm.Get(ctx, "ukg.dataview")
	if got != "2026-08-29" {
		t.Fatalf("watermark = %q", got)
	}
}
