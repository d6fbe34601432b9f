package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kageforge-hq/forge/pkg/providers"

	_ "modernc.org/sqlite" // SQLite driver
)

// PersistentConfig configures the SQLite layer.
type PersistentConfig struct {
	// Path is the database file. ":memory:" keeps the table in memory.
	Path string

	// MaxEntries bounds the table; the least recently used rows are evicted
	// first.
	MaxEntries int

	// TTL is the entry lifetime.
	TTL time.Duration

	// BusyTimeout is how long to wait for the database lock.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// PersistentLayer stores entries in a local SQLite table.
//
// The database runs in WAL mode behind a single connection; SQLite allows
// one writer at a time.
type PersistentLayer struct {
	db         *sql.DB
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	closeOnce  sync.Once

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	evictStmt  *sql.Stmt
	expireStmt *sql.Stmt
}

// NewPersistentLayer opens (creating if needed) the SQLite cache database.
func NewPersistentLayer(cfg PersistentConfig) (*PersistentLayer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &PersistentLayer{
		db:         db,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := l.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return l, nil
}

func (l *PersistentLayer) initSchema() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		last_used_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
	`)
	if err != nil {
		return err
	}

	// Databases created before access tracking lack last_used_at.
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('cache_entries') WHERE name = 'last_used_at'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := l.db.Exec(`ALTER TABLE cache_entries ADD COLUMN last_used_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}

	_, err = l.db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_entries_last_used ON cache_entries(last_used_at)`)
	return err
}

func (l *PersistentLayer) prepareStatements() error {
	var err error

	l.getStmt, err = l.db.Prepare(`
		UPDATE cache_entries SET last_used_at = ? WHERE key = ?
		RETURNING value, created_at, expires_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	l.setStmt, err = l.db.Prepare(`
		INSERT INTO cache_entries (key, value, provider, model, created_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			last_used_at = excluded.last_used_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	l.deleteStmt, err = l.db.Prepare(`DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	l.evictStmt, err = l.db.Prepare(`
		DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries
			ORDER BY last_used_at ASC, rowid ASC
			LIMIT max(0, (SELECT COUNT(*) FROM cache_entries) - ?)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare evict statement: %w", err)
	}

	l.expireStmt, err = l.db.Prepare(`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare expire statement: %w", err)
	}

	return nil
}

func (l *PersistentLayer) Name() string { return LayerPersistent }

func (l *PersistentLayer) TTL() time.Duration { return l.ttl }

func (l *PersistentLayer) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var (
		value              string
		created, expiresAt int64
	)
	err := l.getStmt.QueryRowContext(ctx, l.now().UnixNano(), key).Scan(&value, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	e, err := decodeEntry(key, value, created, expiresAt)
	if err != nil {
		return nil, false, err
	}
	if e.Expired(l.now()) {
		if _, err := l.deleteStmt.ExecContext(ctx, key); err != nil {
			return nil, false, fmt.Errorf("failed to delete expired entry: %w", err)
		}
		return nil, false, nil
	}
	e.Layer = LayerPersistent
	return e, true, nil
}

func (l *PersistentLayer) Set(ctx context.Context, e *Entry) (int, error) {
	value, err := json.Marshal(e.Response)
	if err != nil {
		return 0, fmt.Errorf("failed to encode response: %w", err)
	}

	if _, err := l.setStmt.ExecContext(ctx, e.Key, string(value), e.Response.Provider, e.Response.Model,
		e.CreatedAt.UnixNano(), unixNano(e.ExpiresAt), l.now().UnixNano()); err != nil {
		return 0, err
	}

	if l.maxEntries <= 0 {
		return 0, nil
	}
	res, err := l.evictStmt.ExecContext(ctx, l.maxEntries)
	if err != nil {
		return 0, fmt.Errorf("failed to evict entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeExpired deletes every row past its expiry.
func (l *PersistentLayer) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := l.expireStmt.ExecContext(ctx, now.UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (l *PersistentLayer) Purge(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

func (l *PersistentLayer) Len(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

// Close closes the statements and the database.
func (l *PersistentLayer) Close() error {
	var err error
	l.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{l.getStmt, l.setStmt, l.deleteStmt, l.evictStmt, l.expireStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = l.db.Close()
	})
	return err
}

func decodeEntry(key, value string, created, expiresAt int64) (*Entry, error) {
	var resp providers.Response
	if err := json.Unmarshal([]byte(value), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	e := &Entry{
		Key:       key,
		Response:  &resp,
		CreatedAt: time.Unix(0, created),
	}
	if expiresAt > 0 {
		e.ExpiresAt = time.Unix(0, expiresAt)
	}
	return e, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
