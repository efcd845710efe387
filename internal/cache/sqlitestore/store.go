// Package sqlitestore provides a SQLite-backed cache storage implementation.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/NoahCxrest/nk-cache-proxy/internal/cache"
)

const schema = `
CREATE TABLE IF NOT EXISTS buckets (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	bucket    TEXT NOT NULL REFERENCES buckets(name),
	identity  TEXT NOT NULL,
	status    INTEGER NOT NULL,
	header    BLOB,
	vary      BLOB,
	body      BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (bucket, identity)
);
`

// Store persists cache entries in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite cache database and creates the schema when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open creates the named bucket row if needed.
func (s *Store) Open(ctx context.Context, name string) (cache.Bucket, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO buckets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, toMillis(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return &bucket{db: s.sqlDB, name: name}, nil
}

type bucket struct {
	db   *sql.DB
	name string
}

func (b *bucket) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		status         int
		header, vary   []byte
		body           []byte
		storedAtMillis int64
	)
	row := b.db.QueryRowContext(ctx,
		`SELECT status, header, vary, body, stored_at FROM entries WHERE bucket = ? AND identity = ?`,
		b.name, key,
	)
	if err := row.Scan(&status, &header, &vary, &body, &storedAtMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("select entry: %w", err)
	}

	entry := cache.Entry{
		Status:   status,
		Body:     body,
		StoredAt: fromMillis(storedAtMillis),
	}
	if len(header) > 0 {
		var h http.Header
		if err := json.Unmarshal(header, &h); err != nil {
			return cache.Entry{}, false, fmt.Errorf("decode header: %w", err)
		}
		entry.Header = h
	}
	if len(vary) > 0 {
		if err := json.Unmarshal(vary, &entry.Vary); err != nil {
			return cache.Entry{}, false, fmt.Errorf("decode vary: %w", err)
		}
	}
	if entry.Body == nil {
		entry.Body = []byte{}
	}

	return entry, true, nil
}

func (b *bucket) Set(ctx context.Context, key string, entry cache.Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	var vary []byte
	if len(entry.Vary) > 0 {
		if vary, err = json.Marshal(entry.Vary); err != nil {
			return fmt.Errorf("encode vary: %w", err)
		}
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	_, err = b.db.ExecContext(ctx, `
INSERT INTO entries (bucket, identity, status, header, vary, body, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(bucket, identity) DO UPDATE SET
	status = excluded.status,
	header = excluded.header,
	vary = excluded.vary,
	body = excluded.body,
	stored_at = excluded.stored_at`,
		b.name, key, entry.Status, header, vary, body, toMillis(entry.StoredAt),
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}
