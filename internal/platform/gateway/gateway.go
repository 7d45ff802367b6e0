package gateway

import (
	"context"
	"errors"

	"github.com/fatflowers/biller/pkg/types"
)

// ErrDeclined is returned when the provider rejects the charge itself (as
// opposed to the call failing). The orchestrator turns both into a failed
// transaction; the distinction only shows up in the recorded failure reason.
var ErrDeclined = errors.New("payment declined by provider")

type ChargeRequest struct {
	// Amount in minor units of Currency.
	Amount   int64
	Currency string
	Method   *types.PaymentMethodDetails
	// InvoiceNumber is forwarded for provider-side reconciliation.
	InvoiceNumber string
}

type ChargeResult struct {
	ProviderTransactionID string
}

// PaymentGateway executes a single charge against an external provider.
// Implementations must honor ctx cancellation; the orchestrator always calls
// with a deadline attached.
type PaymentGateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}
