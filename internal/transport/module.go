package transport

import "go.uber.org/fx"

// Module provides transport dependencies.
var Module = fx.Module("transport",
	fx.Provide(
		NewCallChannel,
		NewAnalysisChannel,
	),
)
