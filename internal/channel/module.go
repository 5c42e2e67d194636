package channel

import "go.uber.org/fx"

var Module = fx.Module("channel",
	fx.Provide(
		NewDialer,
	),
)
