// Package state keeps the run ledger: a SQLite database beside the results
// directory recording every pipeline run and its per-phase statistics.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// LedgerDirName is the hidden directory under the results dir that holds the
// ledger and the metrics textfile.
const LedgerDirName = ".reqflow"

// DB is the ledger handle. Writers serialize on mu; readers share it.
type DB struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

func LedgerDir(resultsDir string) string {
	return filepath.Join(resultsDir, LedgerDirName)
}

func DBPath(resultsDir string) string {
	return filepath.Join(LedgerDir(resultsDir), "state.db")
}

// pragmas run on every connection. WAL lets `reqflow status` read while a
// run writes.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// Open opens the database at path, creating missing parent directories.
// The schema is not touched; call Migrate or use OpenLedger.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{conn: conn, path: path}, nil
}

// OpenLedger opens and migrates the ledger for resultsDir.
func OpenLedger(resultsDir string) (*DB, error) {
	db, err := Open(DBPath(resultsDir))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

func (db *DB) Path() string { return db.path }

type migration struct {
	version int
	ddl     string
}

// migrations are applied in order; each runs once, recorded in schema_version.
var migrations = []migration{
	{1, migrationV1Runs},
	{2, migrationV2PhaseStats},
}

// Migrate brings the schema up to the latest version. It is safe to call on
// an up-to-date database.
func (db *DB) Migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var applied int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&applied); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations[min(applied, len(migrations)):] {
		err := db.Transaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.ddl); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	system TEXT NOT NULL,
	model TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	persona_digest TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	ended_at DATETIME,
	outcome TEXT NOT NULL DEFAULT 'running',
	llm_calls INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0.0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(system, fingerprint, model);
`

const migrationV2PhaseStats = `
CREATE TABLE IF NOT EXISTS phase_stats (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	phase TEXT NOT NULL,
	status TEXT NOT NULL,
	attempted INTEGER NOT NULL DEFAULT 0,
	produced INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	deduplicated INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
`

func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// Transaction commits when fn returns nil and rolls back otherwise. fn's
// error is returned unwrapped.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// timeLayout has fixed-width fractions so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime returns nil for NULL and for unparseable text.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	if t, err := parseTime(s.String); err == nil {
		return &t
	}
	return nil
}

// PurgeOldRuns deletes runs that started before now minus olderThan, with
// their phase statistics. Returns the number of runs deleted.
func (db *DB) PurgeOldRuns(now time.Time, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(now.Add(-olderThan))

	var count int64
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM phase_stats WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff); err != nil {
			return fmt.Errorf("purge old phase stats: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("purge old runs: %w", err)
		}
		count, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return count, err
}
