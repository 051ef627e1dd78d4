package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/db"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/logger"
)

// openDatabase opens and migrates the database. The --db flag wins over
// the configured path.
func openDatabase(cmd *cobra.Command, cfg *am.Config) (*sql.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	report, err := db.Apply(commandContext(cmd), database)
	for _, m := range report.Applied {
		logger.DBInfow("Schema migrated", "migration", m.File, "version", m.Version, "path", dbPath)
	}
	if err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
