package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type KVStoreKey string

// Entry represents one record: key -> value.
type Entry struct {
	Key       KVStoreKey
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type KVStore struct {
	db *DB
}

// NewKVStore creates the store and ensures the table exists.
func NewKVStore(ctx context.Context, database *DB) (*KVStore, error) {
	if database == nil {
		return nil, fmt.Errorf("kv_store: nil database")
	}
	s := &KVStore{db: database}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KVStore) ensureSchema(ctx context.Context) error {
	const createTable = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`
	_, err := s.db.Raw().ExecContext(ctx, createTable)
	if err != nil {
		return fmt.Errorf("kv_store: ensure schema: %w", err)
	}
	return nil
}

// List returns every entry whose key starts with prefix, ordered by key.
func (s *KVStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	const q = `
SELECT key, value, created_at, updated_at
FROM kv_store
WHERE substr(key, 1, ?) = ?
ORDER BY key
`
	rows, err := s.db.Raw().QueryContext(ctx, q, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("kv_store: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                        Entry
			createdAtUnix, updatedAt int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &createdAtUnix, &updatedAt); err != nil {
			return nil, fmt.Errorf("kv_store: list: %w", err)
		}
		e.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv_store: list: %w", err)
	}
	return out, nil
}

const upsertStmt = `
INSERT INTO kv_store (key, value, created_at, updated_at)
VALUES (?, ?, CAST(strftime('%s','now') AS INTEGER), CAST(strftime('%s','now') AS INTEGER))
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	updated_at = CAST(strftime('%s','now') AS INTEGER);
`

// UpsertAll writes every pair in one transaction.
func (s *KVStore) UpsertAll(ctx context.Context, values map[KVStoreKey]string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for k, v := range values {
			if err := upsert(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsert(ctx context.Context, tx *sql.Tx, key KVStoreKey, value string) error {
	if strings.TrimSpace(string(key)) == "" {
		return fmt.Errorf("kv_store: upsert: empty key")
	}
	if _, err := tx.ExecContext(ctx, upsertStmt, key, value); err != nil {
		return fmt.Errorf("kv_store: upsert: %w", err)
	}
	return nil
}

// DeleteUpdatedBefore deletes entries that haven't been written since cutoff.
func (s *KVStore) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const stmt = `
DELETE FROM kv_store
WHERE updated_at < ?;
`
	res, err := s.db.Raw().ExecContext(ctx, stmt, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("kv_store: delete updated before: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
