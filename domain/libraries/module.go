package libraries

import (
	"go.uber.org/fx"
)

// Module provides library persistence, membership and routes. The
// LinkTrigger dependency is bound by the linking module.
var Module = fx.Module("libraries",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
