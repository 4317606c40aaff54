package detect

import "go.uber.org/fx"

// Module provides detection dependencies.
var Module = fx.Module("detect",
	fx.Provide(NewSpoofAggregator),
)
