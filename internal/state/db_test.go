package state

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenLedger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenLedgerCreatesHiddenDir(t *testing.T) {
	results := filepath.Join(t.TempDir(), "out", "harbor")

	db, err := OpenLedger(results)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, filepath.Join(results, ".reqflow", "state.db"), db.Path())
	assert.FileExists(t, DBPath(results))
}

func TestOpenRejectsUnwritablePath(t *testing.T) {
	_, err := Open("/proc/reqflow/state.db")
	assert.Error(t, err)
}

func TestQueryAfterCloseFails(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Query("SELECT 1")
	assert.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := setupTestDB(t)
	for range 2 {
		require.NoError(t, db.Migrate())
	}

	var version int
	require.NoError(t, db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 2, version)

	for _, table := range []string{"runs", "phase_stats"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestTransaction(t *testing.T) {
	const insert = "INSERT INTO runs (id, system, model, fingerprint, started_at) VALUES (?, 'harbor', 'm', 'personas-1', '2024-01-01T00:00:00Z')"
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		id      string
		fail    error
		wantRow int
	}{
		{"commits", "kept", nil, 1},
		{"rolls back on error", "dropped", errBoom, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)

			err := db.Transaction(func(tx *sql.Tx) error {
				if _, err := tx.Exec(insert, tt.id); err != nil {
					return err
				}
				return tt.fail
			})
			assert.ErrorIs(t, err, tt.fail)

			var n int
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", tt.id).Scan(&n))
			assert.Equal(t, tt.wantRow, n)
		})
	}
}

func TestTimesSortAsText(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 5000, time.FixedZone("X", 3600))
	parsed, err := parseTime(formatTime(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(parsed))

	whole := formatTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	later := formatTime(time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC))
	assert.Less(t, whole, later)
}

func TestParseNullableTime(t *testing.T) {
	assert.NotNil(t, parseNullableTime(sql.NullString{String: "2024-01-01T12:00:00Z", Valid: true}))
	assert.Nil(t, parseNullableTime(sql.NullString{}))
	assert.Nil(t, parseNullableTime(sql.NullString{String: "not a time", Valid: true}))
}

func TestLedgerDirIsHidden(t *testing.T) {
	dir := LedgerDir("/work/results")
	assert.Equal(t, "/work/results/.reqflow", dir)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
