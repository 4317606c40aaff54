package guard

import "go.uber.org/fx"

// Module provides the guard service.
var Module = fx.Module("guard",
	fx.Provide(
		NewLogSink,
		NewService,
	),
)
