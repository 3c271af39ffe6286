package extracts

import (
	"go.uber.org/fx"
)

// Module provides extract persistence.
var Module = fx.Module("extracts",
	fx.Provide(NewRepository),
)
