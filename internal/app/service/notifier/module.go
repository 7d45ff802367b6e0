package notifier

import "go.uber.org/fx"

// Module exposes the webhook notifier via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
