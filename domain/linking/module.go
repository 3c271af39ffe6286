package linking

import (
	"go.uber.org/fx"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/domain/libraries"
)

// Module provides the coordinator and linking handler, and binds the
// repositories to the narrow store interfaces the engine consumes. The
// coordinator doubles as the libraries package's LinkTrigger.
var Module = fx.Module("linking",
	fx.Provide(
		func(r *libraries.Repository) LibraryStore { return r },
		func(r *extracts.Repository) ExtractStore { return r },
		NewCoordinator,
		func(c *Coordinator) libraries.LinkTrigger { return c },
		NewHandler,
	),
)
