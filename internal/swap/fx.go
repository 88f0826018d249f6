package swap

import "go.uber.org/fx"

var Module = fx.Module("swap",
	fx.Provide(NewClient),
)
