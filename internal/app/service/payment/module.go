package payment

import (
	"go.uber.org/fx"

	"github.com/fatflowers/biller/internal/app/service/ledger"
	"github.com/fatflowers/biller/internal/store"
)

// Module exposes the payment orchestrator via Fx, binding its collaborator
// views to the concrete store and ledger implementations.
var Module = fx.Options(
	fx.Provide(func(s *store.PaymentMethodStore) MethodStore { return s }),
	fx.Provide(func(l *ledger.Service) Ledger { return l }),
	fx.Provide(NewOrchestrator),
)
