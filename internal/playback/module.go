package playback

import (
	"go.uber.org/fx"

	"github.com/voiceguard-app/voiceguard/internal/transport"
)

// Module provides playback dependencies.
var Module = fx.Module("playback",
	fx.Provide(
		fx.Annotate(NewSpeakerPlayer, fx.As(new(transport.Player))),
	),
)
