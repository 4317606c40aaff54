// Package main provides the entry point for the voice guard application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/voiceguard-app/voiceguard/internal/app"
	"github.com/voiceguard-app/voiceguard/internal/capture"
	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/internal/detect"
	"github.com/voiceguard-app/voiceguard/internal/guard"
	"github.com/voiceguard-app/voiceguard/internal/infrastructure"
	"github.com/voiceguard-app/voiceguard/internal/playback"
	"github.com/voiceguard-app/voiceguard/internal/risk"
	"github.com/voiceguard-app/voiceguard/internal/rooms"
	"github.com/voiceguard-app/voiceguard/internal/stream"
	"github.com/voiceguard-app/voiceguard/internal/transport"
	pkginfra "github.com/voiceguard-app/voiceguard/pkg/infrastructure"
)

func main() {
	// Default config path, override with VOICEGUARD_CONFIG.
	configPath := "config.yaml"
	if p := os.Getenv("VOICEGUARD_CONFIG"); p != "" {
		configPath = p
	}

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Pipeline modules
		capture.Module,
		stream.Module,
		transport.Module,
		playback.Module,
		detect.Module,
		risk.Module,
		rooms.Module,
		guard.Module,

		// Supply the config path
		fx.Supply(configPath),

		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(pkginfra.NewFxLoggerAdapter),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go application.Run()

	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	err := application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}
