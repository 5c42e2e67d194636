// Package main provides the entry point for the voice streaming client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/voicewire/voicewire/internal/app"
	"github.com/voicewire/voicewire/internal/channel"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/device"
	"github.com/voicewire/voicewire/internal/infrastructure"
	"github.com/voicewire/voicewire/internal/playback"
	"github.com/voicewire/voicewire/internal/session"
	"github.com/voicewire/voicewire/internal/transcript"
	pkginfra "github.com/voicewire/voicewire/pkg/infrastructure"
)

func main() {
	// Set a default config path. This can be overridden by environment variables or flags if needed.
	configPath := "config.yaml"

	// Create the application with all modules
	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Hardware and transport modules
		device.Module,
		channel.Module,

		// Application modules
		playback.Module,
		transcript.Module,
		session.Module,

		// Supply the config path
		fx.Supply(configPath),

		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(pkginfra.NewFxLoggerAdapter),
	)

	// Set up a channel to listen for OS signals (like Ctrl+C)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the application in a goroutine
	go application.Run()

	// Block until a signal is received
	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	// Create a context with timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	// Gracefully stop the application
	err := application.Stop(shutdownCtx)
	cancel() // Always cancel the context after Stop returns

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}
