package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RemoteConfig configures the shared Postgres layer.
type RemoteConfig struct {
	DSN string

	// Table is the cache table name.
	// Default: "kageforge_cache"
	Table string

	// MaxEntries bounds the table by evicting the least recently used rows.
	// Zero means unbounded.
	MaxEntries int

	TTL time.Duration

	// Timeout bounds every remote operation.
	// Default: 2 seconds
	Timeout time.Duration
}

// RemoteLayer stores entries in a Postgres table shared by several gateway
// instances.
type RemoteLayer struct {
	db         *sql.DB
	table      string
	ttl        time.Duration
	maxEntries int
	timeout    time.Duration
	now        func() time.Time
}

// OpenRemoteLayer connects to Postgres and creates the cache table if it does
// not exist.
func OpenRemoteLayer(ctx context.Context, cfg RemoteConfig) (*RemoteLayer, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("remote cache dsn cannot be empty")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	l := NewRemoteLayer(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := l.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return l, nil
}

// NewRemoteLayer wraps an open database handle.
func NewRemoteLayer(db *sql.DB, cfg RemoteConfig) *RemoteLayer {
	if cfg.Table == "" {
		cfg.Table = "kageforge_cache"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &RemoteLayer{
		db:         db,
		table:      pq.QuoteIdentifier(cfg.Table),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

// EnsureSchema creates the cache table and its indexes.
func (l *RemoteLayer) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			last_used_at BIGINT NOT NULL DEFAULT 0
		);
		ALTER TABLE %[1]s ADD COLUMN IF NOT EXISTS last_used_at BIGINT NOT NULL DEFAULT 0;
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (expires_at);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (last_used_at);
	`, l.table,
		pq.QuoteIdentifier(unquoted(l.table)+"_expires_idx"),
		pq.QuoteIdentifier(unquoted(l.table)+"_last_used_idx"),
	))
	return err
}

func (l *RemoteLayer) Name() string { return LayerRemote }

func (l *RemoteLayer) TTL() time.Duration { return l.ttl }

func (l *RemoteLayer) Get(ctx context.Context, key string) (*Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		value              string
		created, expiresAt int64
	)
	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE %s SET last_used_at = $2 WHERE key = $1 RETURNING value, created_at, expires_at`, l.table),
		key, l.now().UnixNano(),
	).Scan(&value, &created, &expiresAt)
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
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, l.table), key); err != nil {
			return nil, false, fmt.Errorf("failed to delete expired entry: %w", err)
		}
		return nil, false, nil
	}
	e.Layer = LayerRemote
	return e, true, nil
}

func (l *RemoteLayer) Set(ctx context.Context, e *Entry) (int, error) {
	value, err := json.Marshal(e.Response)
	if err != nil {
		return 0, fmt.Errorf("failed to encode response: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err = l.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, provider, model, created_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			last_used_at = EXCLUDED.last_used_at
	`, l.table), e.Key, string(value), e.Response.Provider, e.Response.Model,
		e.CreatedAt.UnixNano(), unixNano(e.ExpiresAt), l.now().UnixNano())
	if err != nil {
		return 0, err
	}

	if l.maxEntries <= 0 {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s WHERE key IN (
			SELECT key FROM %[1]s ORDER BY last_used_at DESC, key OFFSET $1
		)
	`, l.table), l.maxEntries)
	if err != nil {
		return 0, fmt.Errorf("failed to evict entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeExpired deletes every row past its expiry.
func (l *RemoteLayer) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE expires_at > 0 AND expires_at <= $1`, l.table),
		now.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (l *RemoteLayer) Purge(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, l.table))
	return err
}

func (l *RemoteLayer) Len(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var n int
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, l.table)).Scan(&n)
	return n, err
}

func (l *RemoteLayer) Close() error {
	return l.db.Close()
}

// unquoted strips the surrounding quotes added by pq.QuoteIdentifier.
func unquoted(ident string) string {
	if len(ident) >= 2 && ident[0] == '"' && ident[len(ident)-1] == '"' {
		return ident[1 : len(ident)-1]
	}
	return ident
}
