package onramp

import "go.uber.org/fx"

var Module = fx.Module("onramp",
	fx.Provide(NewSigner),
)
