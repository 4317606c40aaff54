package capture

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// Module provides capture dependencies.
var Module = fx.Module("capture",
	fx.Provide(
		NewSourceProvider,
		NewVisualizer,
		NewEngine,
	),
)

// NewSourceProvider selects the capture backend from config: "stdin" streams
// raw PCM from standard input, anything else is treated as a WAV file path.
func NewSourceProvider(logger *zap.Logger, cfg *config.Config) Source {
	if cfg.Audio.Input == "stdin" {
		logger.Info("Using raw PCM capture source on stdin")

		return &PCMReaderSource{Reader: os.Stdin}
	}

	logger.Info("Using WAV file capture source", zap.String("path", cfg.Audio.Input))

	return &WAVFileSource{Path: cfg.Audio.Input}
}
