// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voicewire/voicewire/internal/session"
	"github.com/voicewire/voicewire/internal/transcript"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	// Combine all provided modules with lifecycle management
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

// registerLifecycleHooks ties the session to the application lifecycle:
// the conversation begins when the app starts and ends when it stops.
func registerLifecycleHooks(lc fx.Lifecycle, ctrl session.Controller, history *transcript.History, logger *zap.Logger) {
	ctrl.SetEvents(session.Events{
		OnState: func(s session.State) {
			logger.Info("Session state", zap.Stringer("state", s))
		},
		OnTranscript: func(role, text string) {
			logger.Info("Transcript",
				zap.String("role", role),
				zap.String("text", text))
		},
		OnLevel: func(peak int, rms float64) {
			logger.Debug("Mic level",
				zap.Int("peak", peak),
				zap.Float64("rms", rms))
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application: opening microphone and connecting")

			if err := ctrl.Start(ctx); err != nil {
				logger.Error("Failed to start session", zap.Error(err))

				return err
			}

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application: ending session")

			ctrl.Stop()

			logger.Info("Application stopped successfully",
				zap.Int("transcript_lines", history.Len()))

			return nil
		},
	})
}
