// Package cache stores compiled artifacts in SQLite, keyed by a hash of the
// source and every option that affects the output. A hit skips the whole
// pipeline.
//
// The database runs in WAL mode with a single connection: SQLite allows one
// writer, and the compiler writes rarely.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gsm-lang/gsmc/pkg/logger"
)

const busyTimeout = 5 * time.Second

// Entry is one cached artifact.
type Entry struct {
	// ID identifies the build that produced the artifact.
	ID        string
	Key       string
	Source    string
	Emit      string
	Artifact  []byte
	CreatedAt time.Time
	Hits      int
}

type Cache struct {
	db   *sql.DB
	path string

	getStmt *sql.Stmt
	putStmt *sql.Stmt
	hitStmt *sql.Stmt
}

// Key hashes the source together with a canonical rendering of the options.
func Key(src []byte, options string) string {
	h := sha256.New()
	h.Write([]byte(options))
	h.Write([]byte{0})
	h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}

// Open opens or creates the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache: db path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Cache{db: db, path: path}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: failed to initialize schema: %w", err)
	}
	if err := c.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: failed to prepare statements: %w", err)
	}

	logger.Debug("Opened artifact cache", "path", path)
	return c, nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		source TEXT NOT NULL,
		emit TEXT NOT NULL,
		artifact BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func (c *Cache) prepareStatements(ctx context.Context) error {
	var err error

	c.getStmt, err = c.db.PrepareContext(ctx, `
		SELECT id, source, emit, artifact, created_at, hits FROM artifacts WHERE key = ?
	`)
	if err != nil {
		return fmt.Errorf("get statement: %w", err)
	}

	c.putStmt, err = c.db.PrepareContext(ctx, `
		INSERT INTO artifacts (key, id, source, emit, artifact, created_at, hits)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (key) DO UPDATE SET
			id = excluded.id,
			source = excluded.source,
			emit = excluded.emit,
			artifact = excluded.artifact,
			created_at = excluded.created_at,
			hits = 0
	`)
	if err != nil {
		return fmt.Errorf("put statement: %w", err)
	}

	c.hitStmt, err = c.db.PrepareContext(ctx, `UPDATE artifacts SET hits = hits + 1 WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("hit statement: %w", err)
	}
	return nil
}

// Get returns the entry stored under key. A miss returns (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	e := &Entry{Key: key}
	var created int64
	err := c.getStmt.QueryRowContext(ctx, key).Scan(&e.ID, &e.Source, &e.Emit, &e.Artifact, &created, &e.Hits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	if _, err := c.hitStmt.ExecContext(ctx, key); err != nil {
		return nil, false, fmt.Errorf("cache: record hit: %w", err)
	}
	e.Hits++
	e.CreatedAt = time.Unix(0, created)
	logger.LogCacheHit(e.Source, key)
	return e, true, nil
}

// Put stores e, replacing any entry with the same key. An empty ID is
// filled with a fresh UUID.
func (c *Cache) Put(ctx context.Context, e *Entry) error {
	if e.Key == "" {
		return errors.New("cache: entry has no key")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Artifact == nil {
		e.Artifact = []byte{}
	}

	_, err := c.putStmt.ExecContext(ctx, e.Key, e.ID, e.Source, e.Emit, e.Artifact, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", e.Key, err)
	}
	return nil
}

// Len returns the number of stored artifacts.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}

// Prune deletes artifacts created before cutoff and returns how many.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	logger.Info("Pruned artifact cache", "removed", n, "path", c.path)
	return n, nil
}

func (c *Cache) Close() error {
	for _, stmt := range []*sql.Stmt{c.getStmt, c.putStmt, c.hitStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return c.db.Close()
}
