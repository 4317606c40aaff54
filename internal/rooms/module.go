package rooms

import "go.uber.org/fx"

// Module provides room registry dependencies.
var Module = fx.Module("rooms",
	fx.Provide(NewClient),
)
