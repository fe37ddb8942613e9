package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// runMigrations applies all pending schema migrations.
func runMigrations(ctx context.Context, db *sql.DB) error {
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.runMigrations] sub filesystem")
	}

	provider, err := goose.NewProvider(database.DialectSQLite3, db, migrationFS)
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.runMigrations] goose provider")
	}

	if _, err := provider.Up(ctx); err != nil {
		return errors.Wrap(err, "[sqlitestore.runMigrations] up")
	}
	return nil
}
