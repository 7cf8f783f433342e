package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed download.
type Record struct {
	Key          string    `json:"key"`
	RepoID       string    `json:"repo_id"`
	Dir          string    `json:"dir"`
	Bytes        int64     `json:"bytes"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Index tracks completed downloads in SQLite.
type Index struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS downloads (
	key TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	dir TEXT NOT NULL,
	bytes INTEGER NOT NULL DEFAULT 0,
	downloaded_at TEXT NOT NULL
)`

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

// Path returns the database location.
func (x *Index) Path() string { return x.path }

// Close closes the underlying database connection.
func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Put inserts or replaces the record for rec.Key.
func (x *Index) Put(ctx context.Context, rec Record) error {
	return retryOnBusy(ctx, func() error {
		_, err := x.db.ExecContext(ctx,
			`INSERT INTO downloads (key, repo_id, dir, bytes, downloaded_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET repo_id=excluded.repo_id, dir=excluded.dir, bytes=excluded.bytes, downloaded_at=excluded.downloaded_at`,
			rec.Key, rec.RepoID, rec.Dir, rec.Bytes, rec.DownloadedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// Remove deletes the record for key. Missing records are not an error.
func (x *Index) Remove(ctx context.Context, key string) error {
	return retryOnBusy(ctx, func() error {
		_, err := x.db.ExecContext(ctx, `DELETE FROM downloads WHERE key = ?`, key)
		return err
	})
}

// Get returns the record for key, or ok=false when none exists.
func (x *Index) Get(ctx context.Context, key string) (Record, bool, error) {
	row := x.db.QueryRowContext(ctx, `SELECT key, repo_id, dir, bytes, downloaded_at FROM downloads WHERE key = ?`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// List returns every record ordered by key.
func (x *Index) List(ctx context.Context) ([]Record, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT key, repo_id, dir, bytes, downloaded_at FROM downloads ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec Record
		raw string
	)
	if err := scanner.Scan(&rec.Key, &rec.RepoID, &rec.Dir, &rec.Bytes, &raw); err != nil {
		return Record{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		rec.DownloadedAt = ts
	}
	return rec, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
