package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteLedger persists usage records in SQLite.
//
// The database runs in WAL mode with a single connection, so appends from
// concurrent requests are serialized by database/sql.
type SQLiteLedger struct {
	db        *sql.DB
	path      string
	now       func() time.Time
	closeOnce sync.Once

	insertStmt *sql.Stmt
	sumStmt    *sql.Stmt
	pruneStmt  *sql.Stmt
}

// SQLiteConfig configures the SQLite ledger.
type SQLiteConfig struct {
	// Path is the database file. Its directory is created when missing.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteLedger opens (or creates) the ledger database at cfg.Path.
func NewSQLiteLedger(cfg SQLiteConfig) (*SQLiteLedger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &SQLiteLedger{db: db, path: cfg.Path, now: time.Now}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	if err := l.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare ledger statements: %w", err)
	}

	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cached_tokens INTEGER NOT NULL DEFAULT 0,
		thinking_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		cache_layer TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_records(user_id, timestamp);
	`

	_, err := l.db.Exec(schema)
	return err
}

func (l *SQLiteLedger) prepareStatements() error {
	var err error

	l.insertStmt, err = l.db.Prepare(`
		INSERT INTO usage_records (id, request_id, provider, model, user_id,
			input_tokens, output_tokens, cached_tokens, thinking_tokens,
			cost, status, cache_layer, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	l.sumStmt, err = l.db.Prepare(`
		SELECT COALESCE(SUM(cost), 0) FROM usage_records
		WHERE timestamp >= ? AND timestamp < ? AND (? = '' OR user_id = ?)
	`)
	if err != nil {
		return fmt.Errorf("sum: %w", err)
	}

	l.pruneStmt, err = l.db.Prepare(`DELETE FROM usage_records WHERE timestamp < ?`)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	return nil
}

func (l *SQLiteLedger) Append(ctx context.Context, rec *Record) error {
	prepare(rec, l.now)

	_, err := l.insertStmt.ExecContext(ctx,
		rec.ID, rec.RequestID, rec.Provider, rec.Model, rec.UserID,
		rec.InputTokens, rec.OutputTokens, rec.CachedTokens, rec.ThinkingTokens,
		rec.Cost, string(rec.Status), rec.CacheLayer, rec.Error,
		rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if !f.Since.IsZero() {
		add("timestamp >= ?", f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		add("timestamp < ?", f.Until.UnixNano())
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Provider != "" {
		add("provider = ?", f.Provider)
	}
	if f.Model != "" {
		add("model = ?", f.Model)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}

	query := `SELECT id, request_id, provider, model, user_id,
		input_tokens, output_tokens, cached_tokens, thinking_tokens,
		cost, status, cache_layer, error, timestamp
		FROM usage_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		// Newest Limit rows, flipped back to append order below.
		query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
		args = append(args, f.Limit)
	} else {
		query += " ORDER BY timestamp, id"
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			status string
			ts     int64
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.Model, &r.UserID,
			&r.InputTokens, &r.OutputTokens, &r.CachedTokens, &r.ThinkingTokens,
			&r.Cost, &status, &r.CacheLayer, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		r.Status = Status(status)
		r.Success = r.Status == StatusSuccess
		r.Timestamp = time.Unix(0, ts)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.Limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (l *SQLiteLedger) Sum(ctx context.Context, since, until time.Time, userID string) (float64, error) {
	var total float64
	err := l.sumStmt.QueryRowContext(ctx,
		since.UnixNano(), until.UnixNano(), userID, userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}

func (l *SQLiteLedger) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := l.pruneStmt.ExecContext(ctx, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string {
	return l.path
}

func (l *SQLiteLedger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{l.insertStmt, l.sumStmt, l.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = l.db.Close()
	})
	return err
}
