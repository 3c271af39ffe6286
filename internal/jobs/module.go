package jobs

import (
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/litgraph/litgraph/internal/config"
)

// Module provides the job store for fx-wired binaries. The worker pool
// itself is constructed in cmd/worker, where the pool size comes from
// CLI flags.
var Module = fx.Module("jobs",
	fx.Provide(
		fx.Annotate(
			NewStoreFromConfig,
			fx.As(new(Store)),
		),
		NewHTTPHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewStoreFromConfig builds the PostgreSQL job store with the
// configured backoff curve.
func NewStoreFromConfig(db bun.IDB, cfg *config.Config, log *slog.Logger) *PGStore {
	return NewPGStore(db, Options{
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
		RetryMaxDelay:  cfg.Worker.RetryMaxDelay,
	}, log)
}
