// Package db provides the SQLite-backed storage transport for tagshelf.
//
// The database stands in for a synced browser storage area shared by every
// process on the machine. It runs in embedded mode with WAL so CLI commands,
// the sync daemon and the dashboard can read while one of them writes.
//
// Architecture:
//   - Database file: .tagshelf/store.db
//   - WAL mode: concurrent readers during writes
//   - Schema: a single kv table of JSON values keyed like the storage area
//   - Quota: enforced per write batch, whole batches are rejected
//
// Change notification:
//
// Writes made through a DB notify its watchers synchronously. Writes made by
// other processes are only visible after Poll, which diffs the table against
// the last state this DB observed and notifies the difference. The sync
// daemon drives Poll from file system events.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
)

// DB is a kv.Transport over an embedded SQLite database.
type DB struct {
	conn  *sql.DB
	path  string
	quota kv.Quota

	// mu serializes writers in this process and guards lastSeen.
	mu       sync.Mutex
	lastSeen kv.Items

	watchers kv.Watchers
}

var _ kv.Transport = (*DB)(nil)

// Open opens (creating if needed) the database at path with the default
// quota.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	store, err := db.Open(".tagshelf/store.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	return OpenWithQuota(path, kv.DefaultQuota())
}

// OpenWithQuota opens the database at path with a custom quota.
func OpenWithQuota(path string, quota kv.Quota) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	// Immediate transactions take the write lock up front, which keeps
	// read-check-write batches from failing on lock upgrade.
	connStr := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:  conn,
		path:  path,
		quota: quota,
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	snapshot, err := db.Get(context.Background(), nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	db.lastSeen = snapshot
	return db, nil
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,  -- JSON
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Quota returns the quota enforced on writes.
func (db *DB) Quota() kv.Quota {
	return db.quota
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get implements kv.Transport. A nil or empty key list reads everything.
func (db *DB) Get(ctx context.Context, keys []string) (kv.Items, error) {
	items, err := readItems(ctx, db.conn, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrRead, err)
	}
	return items, nil
}

func readItems(ctx context.Context, q queryer, keys []string) (kv.Items, error) {
	query := `SELECT key, value FROM kv`
	var args []any
	if len(keys) > 0 {
		query += ` WHERE key IN (?` + strings.Repeat(`, ?`, len(keys)-1) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := make(kv.Items)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// Set implements kv.Transport. The batch is written in one transaction and
// rejected whole when it would exceed the quota.
func (db *DB) Set(ctx context.Context, items kv.Items) error {
	if len(items) == 0 {
		return nil
	}
	for k, v := range items {
		if !json.Valid(v) {
			return fmt.Errorf("%w: value of %q is not valid JSON", kv.ErrWrite, k)
		}
	}

	db.mu.Lock()
	changes, err := db.writeLocked(ctx, func(tx *sql.Tx, current kv.Items) (kv.Changes, error) {
		if err := db.quota.Check(current, items); err != nil {
			return nil, err
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
		`
		for _, k := range items.Keys() {
			if _, err := tx.ExecContext(ctx, query, k, string(items[k]), now); err != nil {
				return nil, fmt.Errorf("%w: failed to upsert %s: %v", kv.ErrWrite, k, err)
			}
		}
		before := make(kv.Items, len(items))
		for k := range items {
			if v, ok := current[k]; ok {
				before[k] = v
			}
		}
		return kv.Diff(before, items), nil
	})
	db.mu.Unlock()
	if err != nil {
		return err
	}

	db.watchers.Notify(changes)
	return nil
}

// Remove implements kv.Transport.
func (db *DB) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	db.mu.Lock()
	changes, err := db.writeLocked(ctx, func(tx *sql.Tx, current kv.Items) (kv.Changes, error) {
		changes := make(kv.Changes)
		for _, k := range keys {
			v, ok := current[k]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return nil, fmt.Errorf("%w: failed to delete %s: %v", kv.ErrWrite, k, err)
			}
			changes[k] = kv.Change{OldValue: v}
		}
		return changes, nil
	})
	db.mu.Unlock()
	if err != nil {
		return err
	}

	db.watchers.Notify(changes)
	return nil
}

// writeLocked runs fn in a transaction over the current table contents and,
// once committed, folds the returned changes into lastSeen. db.mu must be
// held.
func (db *DB) writeLocked(ctx context.Context, fn func(tx *sql.Tx, current kv.Items) (kv.Changes, error)) (kv.Changes, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", kv.ErrWrite, err)
	}
	defer tx.Rollback()

	current, err := readItems(ctx, tx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrWrite, err)
	}

	changes, err := fn(tx, current)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit transaction: %v", kv.ErrWrite, err)
	}

	for k, c := range changes {
		if c.Removed() {
			delete(db.lastSeen, k)
		} else {
			db.lastSeen[k] = c.NewValue
		}
	}
	return changes, nil
}

// Watch implements kv.Transport.
func (db *DB) Watch(fn kv.ChangeFunc) func() {
	return db.watchers.Add(fn)
}

// Poll notifies watchers of every difference between the table and the last
// state this DB observed, typically writes by other processes. It returns the
// number of changed keys.
func (db *DB) Poll(ctx context.Context) (int, error) {
	db.mu.Lock()
	current, err := readItems(ctx, db.conn, nil)
	if err != nil {
		db.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", kv.ErrRead, err)
	}
	changes := kv.Diff(db.lastSeen, current)
	db.lastSeen = current
	db.mu.Unlock()

	db.watchers.Notify(changes)
	return len(changes), nil
}

// Usage reports the number of stored items and the bytes they count against
// the quota.
func (db *DB) Usage(ctx context.Context) (items, bytes int, err error) {
	all, err := db.Get(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	for k, v := range all {
		bytes += kv.ItemSize(k, v)
	}
	return len(all), bytes, nil
}
