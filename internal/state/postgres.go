package state

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsrelay/relay-core/internal/coded"
)

// PostgresStore implements Store backed by Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transfer_ledger (
  scope text NOT NULL,
  item_id text NOT NULL,
  path text NOT NULL DEFAULT '',
  size_bytes bigint NOT NULL DEFAULT 0,
  copied boolean NOT NULL DEFAULT false,
  attempts int NOT NULL DEFAULT 0,
  last_error text NOT NULL DEFAULT '',
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (scope, item_id)
);
CREATE TABLE IF NOT EXISTS alert_tickets (
  dedupe_key text PRIMARY KEY,
  ticket_id text NOT NULL,
  alert_state text NOT NULL,
  resolved boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS dataset_watermarks (
  dataset_id text PRIMARY KEY,
  watermark text NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
);
`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ledger() TransferLedger { return (*pgLedger)(s) }
func (s *PostgresStore) Tickets() TicketMap     { return (*pgTickets)(s) }
func (s *PostgresStore) Watermarks() Watermarks { return (*pgWatermarks)(s) }

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Transfer ledger ---

type pgLedger PostgresStore

func (l *pgLedger) IsCopied(ctx context.Context, scope, itemID string) (bool, error) {
	var copied bool
	err := l.pool.QueryRow(ctx,
		`SELECT copied FROM transfer_ledger WHERE scope = $1 AND item_id = $2`,
		scope, itemID).Scan(&copied)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return copied, nil
}

func (l *pgLedger) MarkCopied(ctx context.Context, entry *LedgerEntry) error {
	_, err := l.pool.Exec(ctx, `
INSERT INTO transfer_ledger (scope, item_id, path, size_bytes, copied, attempts, last_error, updated_at)
VALUES ($1, $2, $3, $4, true, $5, '', now())
ON CONFLICT (scope, item_id) DO UPDATE
SET copied = true, path = EXCLUDED.path, size_bytes = EXCLUDED.size_bytes,
    attempts = EXCLUDED.attempts, last_error = '', updated_at = now()`,
		entry.Scope, entry.ItemID, entry.Path, entry.SizeBytes, entry.Attempts)
	if err != nil {
		return coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return nil
}

func (l *pgLedger) MarkFailed(ctx context.Context, entry *LedgerEntry) error {
	_, err := l.pool.Exec(ctx, `
INSERT INTO transfer_ledger (scope, item_id, path, size_bytes, copied, attempts, last_error, updated_at)
VALUES ($1, $2, $3, $4, false, $5, $6, now())
ON CONFLICT (scope, item_id) DO UPDATE
SET copied = false, attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error, updated_at = now()`,
		entry.Scope, entry.ItemID, entry.Path, entry.SizeBytes, entry.Attempts, entry.LastError)
	if err != nil {
		return coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return nil
}

func (l *pgLedger) Stats(ctx context.Context, scope string) (int64, int64, error) {
	var copied, failed int64
	err := l.pool.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE copied), count(*) FILTER (WHERE NOT copied)
FROM transfer_ledger WHERE scope = $1`, scope).Scan(&copied, &failed)
	if err != nil {
		return 0, 0, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return copied, failed, nil
}

// --- Alert tickets ---

type pgTickets PostgresStore

func (t *pgTickets) Get(ctx context.Context, dedupeKey string) (*TicketMapping, error) {
	m := &TicketMapping{}
	err := t.pool.QueryRow(ctx, `
SELECT dedupe_key, ticket_id, alert_state, resolved, created_at, updated_at
FROM alert_tickets WHERE dedupe_key = $1 AND NOT resolved`, dedupeKey).
		Scan(&m.DedupeKey, &m.TicketID, &m.AlertState, &m.Resolved, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return m, nil
}

func (t *pgTickets) Put(ctx context.Context, m *TicketMapping) error {
	_, err := t.pool.Exec(ctx, `
INSERT INTO alert_tickets (dedupe_key, ticket_id, alert_state, resolved, created_at, updated_at)
VALUES ($1, $2, $3, false, now(), now())
ON CONFLICT (dedupe_key) DO UPDATE
SET ticket_id = EXCLUDED.ticket_id, alert_state = EXCLUDED.alert_state,
    resolved = false, updated_at = now()`,
		m.DedupeKey, m.TicketID, m.AlertState)
	if err != nil {
		return coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return nil
}

func (t *pgTickets) Resolve(ctx context.Context, dedupeKey string) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE alert_tickets SET resolved = true, updated_at = now() WHERE dedupe_key = $1`,
		dedupeKey)
	if err != nil {
		return coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return nil
}

func (t *pgTickets) Active(ctx context.Context) ([]*TicketMapping, error) {
	rows, err := t.pool.Query(ctx, `
SELECT dedupe_key, ticket_id, alert_state, resolved, created_at, updated_at
FROM alert_tickets WHERE NOT resolved ORDER BY dedupe_key`)
	if err != nil {
		return nil, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	defer rows.Close()

	var out []*TicketMapping
	for rows.Next() {
		m := &TicketMapping{}
		if err := rows.Scan(&m.DedupeKey, &m.TicketID, &m.AlertState, &m.Resolved, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, coded.Wrap(coded.CodeStateStoreFailed, true, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return out, nil
}

// --- Watermarks ---

type pgWatermarks PostgresStore

func (w *pgWatermarks) Get(ctx context.Context, datasetID string) (string, error) {
	var watermark string
	err := w.pool.QueryRow(ctx,
		`SELECT watermark FROM dataset_watermarks WHERE dataset_id = $1`, datasetID).
		Scan(&watermark)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return watermark, nil
}

func (w *pgWatermarks) Set(ctx context.Context, datasetID, watermark string) error {
	_, err := w.pool.Exec(ctx, `
INSERT INTO dataset_watermarks (dataset_id, watermark, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (dataset_id) DO UPDATE SET watermark = EXCLUDED.watermark, updated_at = now()`,
		datasetID, watermark)
	if err != nil {
		return coded.Wrap(coded.CodeStateStoreFailed, true, err)
	}
	return nil
}
