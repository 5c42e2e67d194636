package device

import (
	"context"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides audio hardware dependencies. The PortAudio runtime is
// initialized once for the process lifetime; the capture device is
// acquired per session, the output device lives until shutdown.
var Module = fx.Module("device",
	fx.Provide(
		NewCapture,
		NewPlayer,
	),
	fx.Invoke(registerPortAudioLifecycle),
)

func registerPortAudioLifecycle(lc fx.Lifecycle, player Player, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return portaudio.Initialize()
		},
		OnStop: func(ctx context.Context) error {
			// Close blocks until an in-flight render finishes, so the
			// output stream is quiesced before the runtime goes away.
			if err := player.Close(); err != nil {
				logger.Warn("Closing playback device", zap.Error(err))
			}
			return portaudio.Terminate()
		},
	})
}
