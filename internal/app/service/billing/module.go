package billing

import (
	"go.uber.org/fx"

	"github.com/fatflowers/biller/internal/app/service/notifier"
	"github.com/fatflowers/biller/internal/app/service/payment"
	"github.com/fatflowers/biller/internal/store"
)

// Module exposes the lifecycle manager via Fx, binding its collaborator
// views to the concrete implementations.
var Module = fx.Options(
	fx.Provide(func(s *store.SubscriptionStore) SubscriptionStore { return s }),
	fx.Provide(func(s *store.PlanStore) PlanStore { return s }),
	fx.Provide(func(s *store.PaymentMethodStore) MethodStore { return s }),
	fx.Provide(func(s *store.SubscriptionLogStore) ChangeLogger { return s }),
	fx.Provide(func(o *payment.Orchestrator) Charger { return o }),
	fx.Provide(func(n *notifier.Service) Notifier { return n }),
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Manager { return s }),
)
