package stream

import "go.uber.org/fx"

// Module provides streaming dependencies.
var Module = fx.Module("stream",
	fx.Provide(NewMultiplexer),
)
