// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voiceguard-app/voiceguard/internal/config"
	"github.com/voiceguard-app/voiceguard/internal/guard"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	app := fx.New(options...)

	return &Application{
		app: app,
	}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// registerLifecycleHooks connects the analysis backend, enters the
// configured room, and starts the protected call on startup; everything is
// torn down in reverse on shutdown.
func registerLifecycleHooks(lc fx.Lifecycle, svc *guard.Service, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application", zap.String("session_id", svc.SessionID()))

			if err := svc.ConnectAnalysis(ctx); err != nil {
				logger.Error("Failed to connect analysis channel", zap.Error(err))

				return err
			}

			if cfg.Call.RoomID != "" {
				if err := svc.JoinRoom(ctx, cfg.Call.RoomID); err != nil {
					logger.Error("Failed to join room", zap.Error(err))

					return err
				}
			} else {
				room, err := svc.CreateRoom(ctx, cfg.Call.RoomName)
				if err != nil {
					logger.Error("Failed to create room", zap.Error(err))

					return err
				}

				logger.Info("Created room", zap.String("room_id", room.ID))
			}

			if err := svc.StartCall(ctx); err != nil {
				logger.Error("Failed to start call", zap.Error(err))

				return err
			}

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application")

			svc.StopCall()

			if err := svc.LeaveRoom(ctx); err != nil {
				logger.Warn("Failed to leave room", zap.Error(err))
			}

			svc.Close()

			logger.Info("Application stopped successfully")

			return nil
		},
	})
}
