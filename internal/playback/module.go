package playback

import "go.uber.org/fx"

var Module = fx.Module("playback",
	fx.Provide(
		NewScheduler,
	),
)
