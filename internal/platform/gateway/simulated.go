package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/fx"

	cfgpkg "github.com/fatflowers/biller/pkg/config"
)

// Simulated approves a configurable fraction of charges and declines the
// rest. It stands in for a real provider integration; swap the PaymentGateway
// binding to go live.
type Simulated struct {
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(cfg *cfgpkg.Config) *Simulated {
	return NewSimulatedWithSource(cfg.Gateway.SuccessRate, rand.NewSource(time.Now().UnixNano()))
}

// NewSimulatedWithSource pins the random source, for deterministic tests.
func NewSimulatedWithSource(successRate float64, src rand.Source) *Simulated {
	return &Simulated{successRate: successRate, rng: rand.New(src)}
}

func (g *Simulated) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Method == nil {
		return nil, ErrDeclined
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll >= g.successRate {
		return nil, ErrDeclined
	}

	g.mu.Lock()
	ref := g.rng.Int63n(1_000_000)
	g.mu.Unlock()
	return &ChargeResult{
		ProviderTransactionID: fmt.Sprintf("txn_%d_%06d", time.Now().UnixMilli(), ref),
	}, nil
}

var Module = fx.Options(
	fx.Provide(func(cfg *cfgpkg.Config) PaymentGateway { return NewSimulated(cfg) }),
)
