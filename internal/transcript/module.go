package transcript

import (
	"go.uber.org/fx"

	"github.com/voicewire/voicewire/internal/config"
)

var Module = fx.Module("transcript",
	fx.Provide(
		func(cfg *config.Config) (*History, error) {
			return NewHistory(cfg.Session.TranscriptHistorySize)
		},
	),
)
