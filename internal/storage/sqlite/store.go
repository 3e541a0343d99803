// Package sqlite implements the storage interfaces over an embedded
// SQLite database.
//
// Layout:
//   - store.go: Store struct, New() constructor, pragmas, pool sizing,
//     health probe, snapshot/integrity helpers
//   - schema.go: schema DDL and the expected-object lists
//   - migrations.go: checksummed migration machinery
//   - seeds.go: idempotent seed machinery
//   - transaction.go: RunInTransaction and the Tx wrapper
//   - querybuilder.go: typed query construction with column whitelists
//   - boards.go, columns.go, tasks.go, notes.go, tags.go, deps.go,
//     mappings.go, backups.go, apikeys.go: per-aggregate repositories
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/kanbanhq/kanban/internal/storage"
)

// Verify Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// Store is the SQLite storage backend. The process exclusively owns
// the database file; the pool is sized for one writer plus readers.
type Store struct {
	db       *sql.DB
	dbPath   string
	closed   atomic.Bool
	readonly atomic.Bool

	queries // read surface bound to the pool
}

// setupWASMCache configures WASM compilation caching so the embedded
// SQLite build is compiled once per wazero version, not per process.
// Falls back to an in-memory cache if the cache dir cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "kanban", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// pragmas applied to every connection at open time. WAL is enabled
// separately after open (it is a database-level setting).
const connPragmas = "_pragma=foreign_keys(ON)" +
	"&_pragma=busy_timeout(30000)" +
	"&_pragma=cache_size(-65536)" +
	"&_pragma=mmap_size(268435456)" +
	"&_pragma=auto_vacuum(INCREMENTAL)" +
	"&_time_format=sqlite"

// New opens (creating if necessary) the database at path, applies
// pragmas, ensures the schema, and runs pending migrations.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	if path == ":memory:" {
		// Shared in-memory database so multiple pool connections see
		// the same data. WAL does not apply to in-memory databases.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(MEMORY)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&" + connPragmas
		}
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = "file:" + path + "?" + connPragmas
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if isInMemory {
		// In-memory databases are isolated per connection without a
		// single shared connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// One writer plus N readers under WAL. Bounding the pool keeps
		// goroutines from piling up on write-lock contention.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := RunMigrations(ctx, db, 0); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	absPath := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if absPath, err = filepath.Abs(path); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
	}

	s := &Store{db: db, dbPath: absPath}
	s.queries = queries{dbtx: db}
	return s, nil
}

// verifySchema checks the expected tables, views, and the recorded
// schema version. It never attempts repair.
func verifySchema(ctx context.Context, db *sql.DB) error {
	probe := func(kind, name string) error {
		var found string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = ? AND name = ?`, kind, name).Scan(&found)
		if err == sql.ErrNoRows {
			return fmt.Errorf("missing %s %q", kind, name)
		}
		return err
	}
	for _, t := range expectedTables {
		if err := probe("table", t); err != nil {
			return err
		}
	}
	for _, v := range expectedViews {
		if err := probe("view", v); err != nil {
			return err
		}
	}

	var version string
	if err := db.QueryRowContext(ctx,
		`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("schema version mismatch: have %s, want %s", version, schemaVersion)
	}
	return nil
}

// HealthCheck probes connectivity and responsiveness. Responsive means
// SELECT 1 completed in under one second.
func (s *Store) HealthCheck(ctx context.Context) storage.HealthStatus {
	status := storage.HealthStatus{Stats: map[string]any{}}
	if s.closed.Load() {
		return status
	}
	status.Connected = s.db.PingContext(ctx) == nil
	if !status.Connected {
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	start := time.Now()
	var one int
	if err := s.db.QueryRowContext(probeCtx, "SELECT 1").Scan(&one); err == nil && one == 1 {
		status.Responsive = true
		status.Stats["probe_ms"] = time.Since(start).Milliseconds()
	}

	for _, table := range []string{"boards", "tasks", "notes", "tags", "backups"} {
		var n int
		// Table names come from the fixed list above, not user input.
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err == nil {
			status.Stats[table] = n
		}
	}
	dbStats := s.db.Stats()
	status.Stats["open_connections"] = dbStats.OpenConnections
	status.Stats["in_use"] = dbStats.InUse
	return status
}

// Snapshot writes a consistent copy of the database to destPath via
// VACUUM INTO, which takes a stable read view while pages are copied.
func (s *Store) Snapshot(ctx context.Context, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear snapshot path: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check and fails unless the
// result is exactly "ok".
func (s *Store) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// DataVersion returns a token that changes whenever board or task
// content changes. PRAGMA data_version only ticks for commits from
// other connections, so it is combined with a content fingerprint to
// also cover writes made through this pool.
func (s *Store) DataVersion(ctx context.Context) (int64, error) {
	var dataVersion int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&dataVersion); err != nil {
		return 0, fmt.Errorf("failed to read data_version: %w", err)
	}
	var fingerprint int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM boards)
		     + (SELECT COUNT(*) FROM tasks)
		     + (SELECT COALESCE(MAX(id), 0) FROM tasks)
		     + (SELECT COALESCE(SUM(strftime('%s', updated_at)) % 1000000007, 0) FROM tasks)
	`).Scan(&fingerprint); err != nil {
		return 0, fmt.Errorf("failed to compute change fingerprint: %w", err)
	}
	return dataVersion<<32 ^ fingerprint, nil
}

// SetReadOnly toggles restore mode. While set, RunInTransaction fails
// with storage.ErrUnavailable.
func (s *Store) SetReadOnly(readonly bool) {
	s.readonly.Store(readonly)
}

// Path returns the absolute path of the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// Close checkpoints the WAL and closes the pool. Without the
// checkpoint, recent writes could be stranded in the WAL file.
func (s *Store) Close() error {
	s.closed.Store(true)
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
