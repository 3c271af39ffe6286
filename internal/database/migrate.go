package database

import (
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"

	"github.com/litgraph/litgraph/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies pending SQL migrations from the embedded FS.
func RunMigrations(db *bun.DB, log *slog.Logger) error {
	log = log.With(logger.Scope("migrate"))

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db.DB)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	log.Info("migrations applied", slog.Int64("version", version))
	return nil
}
