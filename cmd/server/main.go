// Package main is the entry point for the litgraph API server.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/domain/libraries"
	"github.com/litgraph/litgraph/domain/linking"
	"github.com/litgraph/litgraph/domain/papers"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/database"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/internal/server"
	"github.com/litgraph/litgraph/internal/storage"
	"github.com/litgraph/litgraph/pkg/logger"
)

func main() {
	// Load .env if present, for local development. Existing vars win.
	_ = godotenv.Load()

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		fx.Invoke(database.RunMigrations),
		server.Module,
		storage.Module,
		jobs.Module,

		// Domain modules
		papers.Module,
		extracts.Module,
		libraries.Module,
		linking.Module,
	).Run()
}
