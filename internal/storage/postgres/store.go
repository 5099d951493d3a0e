package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"monoswap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ledger_events (
	id          TEXT PRIMARY KEY,
	op          TEXT NOT NULL,
	key         TEXT NOT NULL DEFAULT '',
	hash        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	record      JSONB,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_hash_idx ON ledger_events (hash);
`

// Store provides Postgres persistence for keyed records and ledger events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by the store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load returns the value stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("record key required")
	}
	var data []byte
	row := s.pool.QueryRow(ctx, `SELECT value FROM kv_records WHERE key=$1`, key)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Save upserts the value for key. data must be valid JSON.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("record key required")
	}
	if !json.Valid(data) {
		return fmt.Errorf("record %s: value is not valid json", key)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, key, data)
	return err
}

// Publish records a ledger event. Replays of the same event id are ignored.
func (s *Store) Publish(ctx context.Context, event model.LedgerEvent) error {
	var (
		record []byte
		hash   string
		status string
		err    error
	)
	if event.Record != nil {
		record, err = json.Marshal(event.Record)
		if err != nil {
			return fmt.Errorf("marshal ledger record: %w", err)
		}
		hash = event.Record.Hash
		status = string(event.Record.Status)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_events (id, op, key, hash, status, record, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, string(event.Op), event.Key, hash, status, record, event.At)
	return err
}

// EventsByHash returns the recorded events for a transaction hash, oldest first.
func (s *Store) EventsByHash(ctx context.Context, hash string) ([]model.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, op, key, record, occurred_at
		FROM ledger_events WHERE hash=$1 ORDER BY occurred_at
	`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.LedgerEvent
	for rows.Next() {
		var (
			ev     model.LedgerEvent
			op     string
			record []byte
		)
		if err := rows.Scan(&ev.ID, &op, &ev.Key, &record, &ev.At); err != nil {
			return nil, err
		}
		ev.Op = model.LedgerOp(op)
		if len(record) > 0 {
			var tx model.Transaction
			if err := json.Unmarshal(record, &tx); err != nil {
				return nil, fmt.Errorf("parse ledger record: %w", err)
			}
			ev.Record = &tx
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
