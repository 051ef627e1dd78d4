package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMigrate(t *testing.T) {
	t.Run("records every migration", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		entries, err := migrations.ReadDir("sqlite/migrations")
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, len(entries), count)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")
	})

	t.Run("closed database reports closed", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
	})

	t.Run("results cascade with their job", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO discovery_jobs (id, name, strategy, searches_per_cycle, interval_minutes, total_cycles, created_at, updated_at)
			VALUES ('j1', 'cascade', 'random', 1, 1, 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO discovery_results (id, job_id, keyword, cycle, status, created_at)
			VALUES ('r1', 'j1', 'habit tracker', 1, 'success', '2026-01-01T00:00:00Z')`)
		require.NoError(t, err)

		_, err = db.Exec(`DELETE FROM discovery_jobs WHERE id = 'j1'`)
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM discovery_results").Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("rejects out of range job config", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO discovery_jobs (id, name, strategy, searches_per_cycle, interval_minutes, total_cycles, created_at, updated_at)
			VALUES ('j1', 'bad', 'random', 11, 1, 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
		assert.Error(t, err)
	})
}

func TestApplyReportsMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	all, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "000", all[0].Version)

	ctx := context.Background()
	first, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, all, first.Applied)
	assert.Zero(t, first.Skipped)
	assert.Equal(t, all[len(all)-1].Version, first.Version)

	second, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Equal(t, len(all), second.Skipped)
	assert.Equal(t, first.Version, second.Version)
}

func TestMigrateLogsAppliedFiles(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	require.NoError(t, Migrate(db, zap.New(core).Sugar()))

	all, err := Migrations()
	require.NoError(t, err)
	assert.Equal(t, len(all), logs.FilterMessage("Applied migration").Len())
	assert.Equal(t, 1, logs.FilterMessage("Schema up to date").Len())
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(ErrDatabaseClosed))
	assert.False(t, IsDatabaseClosed(assert.AnError))
}
