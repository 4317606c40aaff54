package risk

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
)

// Module provides risk classification dependencies.
var Module = fx.Module("risk",
	fx.Provide(
		NewBackendProvider,
		NewHistoryStoreProvider,
		NewClassifier,
	),
)

// NewBackendProvider selects the classification backend: the hosted gateway
// when a server URL is configured, direct OpenAI otherwise.
func NewBackendProvider(logger *zap.Logger, cfg *config.Config) Backend {
	if cfg.AI.ServerURL != "" {
		logger.Info("Using AI gateway backend", zap.String("server_url", cfg.AI.ServerURL))

		return NewGatewayBackend(logger, cfg)
	}

	logger.Info("Using OpenAI backend", zap.String("model", cfg.AI.OpenAIModel))

	return NewOpenAIBackend(logger, cfg)
}

// NewHistoryStoreProvider sizes the history store from config.
func NewHistoryStoreProvider(cfg *config.Config) (*HistoryStore, error) {
	return NewHistoryStore(cfg.AI.HistoryCacheSize)
}
