// Package store persists assistant state that must survive a restart.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cutie/internal/cache"
)

// Store is the SQLite-backed ledger of pending cache evictions.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS evictions (
		path TEXT PRIMARY KEY,
		scheduled_at INTEGER NOT NULL,
		wait_ns INTEGER NOT NULL
	);`)
	return err
}

// SaveEviction records e, replacing any earlier record for the same path.
func (s *Store) SaveEviction(ctx context.Context, e cache.Eviction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evictions (path, scheduled_at, wait_ns) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET scheduled_at = excluded.scheduled_at, wait_ns = excluded.wait_ns`,
		e.Path, e.ScheduledAt.UnixNano(), int64(e.Wait),
	)
	if err != nil {
		return fmt.Errorf("save eviction %s: %w", e.Path, err)
	}
	return nil
}

func (s *Store) DeleteEviction(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM evictions WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete eviction %s: %w", path, err)
	}
	return nil
}

// ListEvictions returns pending evictions ordered by due time.
func (s *Store) ListEvictions(ctx context.Context) ([]cache.Eviction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, scheduled_at, wait_ns FROM evictions ORDER BY scheduled_at + wait_ns, path`)
	if err != nil {
		return nil, fmt.Errorf("list evictions: %w", err)
	}
	defer rows.Close()

	var out []cache.Eviction
	for rows.Next() {
		var (
			path        string
			scheduledAt int64
			wait        int64
		)
		if err := rows.Scan(&path, &scheduledAt, &wait); err != nil {
			return nil, fmt.Errorf("scan eviction: %w", err)
		}
		out = append(out, cache.Eviction{
			Path:        path,
			ScheduledAt: time.Unix(0, scheduledAt),
			Wait:        time.Duration(wait),
		})
	}

	return out, rows.Err()
}
