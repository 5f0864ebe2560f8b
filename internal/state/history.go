package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const historyPrefix = "history:"

// HistoryEntry is what one run decided for one service.
type HistoryEntry struct {
	Service string    `json:"-"`
	OldTag  string    `json:"old_tag"`
	NewTag  string    `json:"new_tag"`
	Rebuild bool      `json:"rebuild"`
	At      time.Time `json:"at"`
}

// HistoryRecord is a stored HistoryEntry with the manifest it belongs to.
type HistoryRecord struct {
	Override string
	HistoryEntry
}

// History keeps the last decision per (override file, service). It is written
// by runs and read only by the history command.
type History struct {
	kv *KVStore
}

func NewHistory(kv *KVStore) *History {
	return &History{kv: kv}
}

// OpenHistory opens the database at path and prepares the store.
func OpenHistory(ctx context.Context, path string) (*History, func() error, error) {
	db, err := Open(ctx, Config{Path: path})
	if err != nil {
		return nil, nil, err
	}
	kv, err := NewKVStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return NewHistory(kv), db.Close, nil
}

func historyKey(override, service string) KVStoreKey {
	return KVStoreKey(historyPrefix + override + ":" + service)
}

// Record upserts entries for override in one transaction.
func (h *History) Record(ctx context.Context, override string, entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[KVStoreKey]string, len(entries))
	for _, e := range entries {
		if e.At.IsZero() {
			e.At = time.Now().UTC()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("history: encode %s: %w", e.Service, err)
		}
		values[historyKey(override, e.Service)] = string(data)
	}
	return h.kv.UpsertAll(ctx, values)
}

// List returns every recorded entry ordered by override path, then service.
func (h *History) List(ctx context.Context) ([]HistoryRecord, error) {
	entries, err := h.kv.List(ctx, historyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryRecord, 0, len(entries))
	for _, e := range entries {
		rest := strings.TrimPrefix(string(e.Key), historyPrefix)
		idx := strings.LastIndex(rest, ":")
		if idx < 0 {
			continue
		}
		rec := HistoryRecord{Override: rest[:idx]}
		if err := json.Unmarshal([]byte(e.Value), &rec.HistoryEntry); err != nil {
			return nil, fmt.Errorf("history: decode %s: %w", e.Key, err)
		}
		rec.Service = rest[idx+1:]
		out = append(out, rec)
	}
	return out, nil
}

// Prune drops entries not written since cutoff.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return h.kv.DeleteUpdatedBefore(ctx, cutoff)
}
