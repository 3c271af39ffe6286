package logger

import (
	"go.uber.org/fx"
)

// Module provides the process-wide logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)
