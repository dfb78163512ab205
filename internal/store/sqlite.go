package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const cacheSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key         TEXT PRIMARY KEY,
		json        TEXT NOT NULL,
		fetched_at  TEXT NOT NULL,
		ttl_seconds INTEGER NOT NULL CHECK (ttl_seconds >= 0)
	);
`

// SQLiteStore persists cache entries in a single SQLite file so the last
// known payload for every widget survives process restarts.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// OpenSQLite opens (and if needed creates) the cache database at dbPath.
// Writes go through a single connection, which keeps puts on the same key
// linearizable; reads use a separate read-only connection.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &SQLiteStore{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.writeDB.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		return fmt.Errorf("applying pragmas: %w", err)
	}
	if _, err := s.writeDB.Exec(cacheSchema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes both database connections.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Put stores payload under key, replacing any prior entry as a whole. The
// upsert is a single statement, so readers see either the old entry or the
// new one, never a mix.
func (s *SQLiteStore) Put(ctx context.Context, key string, payload any, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key must not be empty")
	}
	if ttl < 0 {
		return errors.New("ttl must be >= 0")
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload for %q: %w", key, err)
	}

	fetchedAt := time.Now().UTC()
	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO cache_entries (key, json, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			json = excluded.json,
			fetched_at = excluded.fetched_at,
			ttl_seconds = excluded.ttl_seconds
	`, key, string(raw), fetchedAt.Format(time.RFC3339Nano), int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("upserting %q: %w", key, err)
	}
	return nil
}

// Get returns the latest entry for key, stale or not.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		raw        string
		fetchedAt  string
		ttlSeconds int64
	)
	err := s.readDB.QueryRowContext(ctx,
		`SELECT json, fetched_at, ttl_seconds FROM cache_entries WHERE key = ?`, key,
	).Scan(&raw, &fetchedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("querying %q: %w", key, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing fetched_at for %q: %w", key, err)
	}

	return Entry{
		Key:       key,
		Payload:   []byte(raw),
		FetchedAt: ts.UTC(),
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}, nil
}

// Keys lists all cache keys in ascending order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT key FROM cache_entries ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Prune deletes entries whose age exceeds their TTL and returns how many were
// removed. The scheduler never calls this; stale data is served until a
// successful refresh or a manual prune replaces it.
func (s *SQLiteStore) Prune(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT key, fetched_at, ttl_seconds FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}

	var stale []string
	for rows.Next() {
		var (
			key        string
			fetchedAt  string
			ttlSeconds int64
		)
		if err := rows.Scan(&key, &fetchedAt, &ttlSeconds); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning entry: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("parsing fetched_at for %q: %w", key, err)
		}
		if !(Entry{FetchedAt: ts, TTL: time.Duration(ttlSeconds) * time.Second}).Fresh(now) {
			stale = append(stale, key)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, key := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return 0, fmt.Errorf("deleting %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}
