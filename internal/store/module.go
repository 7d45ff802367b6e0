package store

import "go.uber.org/fx"

// Module exposes the gorm-backed stores via Fx.
var Module = fx.Options(
	fx.Provide(NewSubscriptionStore),
	fx.Provide(NewPlanStore),
	fx.Provide(NewPaymentMethodStore),
	fx.Provide(NewWebhookStore),
	fx.Provide(NewSubscriptionLogStore),
)
