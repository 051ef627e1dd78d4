package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema file.
type Migration struct {
	Version string `json:"version"`
	File    string `json:"file"`
}

// MigrationReport lists what Apply did.
type MigrationReport struct {
	Applied []Migration `json:"applied"`
	Skipped int         `json:"skipped"`
	Version string      `json:"version"`
}

// Migrations lists the embedded schema files in apply order. Version 000
// creates schema_migrations and sorts first.
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var list []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		list = append(list, Migration{Version: version, File: name})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}

// Apply runs every migration not yet recorded in schema_migrations, each in
// its own transaction.
func Apply(ctx context.Context, db *sql.DB) (MigrationReport, error) {
	var report MigrationReport

	list, err := Migrations()
	if err != nil {
		return report, err
	}

	for _, m := range list {
		done, err := isApplied(ctx, db, m)
		if err != nil {
			return report, err
		}
		if done {
			report.Skipped++
			report.Version = m.Version
			continue
		}

		if err := applyOne(ctx, db, m); err != nil {
			return report, err
		}
		report.Applied = append(report.Applied, m)
		report.Version = m.Version
	}
	return report, nil
}

func isApplied(ctx context.Context, db *sql.DB, m Migration) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.Version).Scan(&exists)
	switch {
	case err == nil:
		return exists, nil
	case IsDatabaseClosed(err):
		return false, errors.Wrap(ErrDatabaseClosed, "check migration state")
	case m.Version == "000":
		// schema_migrations does not exist until 000 runs
		return false, nil
	default:
		return false, errors.Wrapf(err, "schema_migrations missing before %s", m.File)
	}
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	body, err := migrations.ReadFile(path.Join(migrationsDir, m.File))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.File)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.File)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.File)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return errors.Wrapf(err, "record %s", m.File)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.File)
}

// Migrate applies pending migrations and logs each one when log is set.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	report, err := Apply(context.Background(), db)
	if log == nil {
		return err
	}
	for _, m := range report.Applied {
		log.Infow("Applied migration", "symbol", sym.DB, "migration", m.File, "version", m.Version)
	}
	if err != nil {
		return err
	}
	log.Debugw("Schema up to date",
		"symbol", sym.DB,
		"version", report.Version,
		"applied", len(report.Applied),
		"skipped", report.Skipped,
	)
	return nil
}
