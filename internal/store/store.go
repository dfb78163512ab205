package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no entry exists for a key.
	ErrNotFound = errors.New("no cache entry for key")
)

// Entry is one cached widget payload together with its freshness metadata.
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"` // always UTC
	TTL       time.Duration   `json:"ttl"`
}

// Fresh reports whether the entry is still inside its freshness window.
// An entry whose age equals its TTL exactly counts as stale.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Store is the contract the durable cache (and the in-memory test store) must
// satisfy. Get returns the latest entry even when it is stale; deciding what
// to do with stale data is the caller's concern. Keys and Prune are
// administrative operations and are never invoked by the scheduler.
type Store interface {
	Put(ctx context.Context, key string, payload any, ttl time.Duration) error
	Get(ctx context.Context, key string) (Entry, error)
	Keys(ctx context.Context) ([]string, error)
	Prune(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// marshalPayload serializes a payload for storage. Raw JSON passes through
// unchanged so callers can re-store a payload they read back.
func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(payload)
	}
}
