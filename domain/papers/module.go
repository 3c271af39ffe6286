package papers

import (
	"go.uber.org/fx"
)

// Module provides paper persistence, upload and routes.
var Module = fx.Module("papers",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
