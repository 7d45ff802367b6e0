package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/platform/gateway"
	"github.com/fatflowers/biller/pkg/clock"
	cfgpkg "github.com/fatflowers/biller/pkg/config"
	"github.com/fatflowers/biller/pkg/logctx"
	"github.com/fatflowers/biller/pkg/metrics"
	"github.com/fatflowers/biller/pkg/tool"
	"github.com/fatflowers/biller/pkg/types"
)

// MethodStore is the orchestrator's view of payment method persistence.
type MethodStore interface {
	FindByID(ctx context.Context, id string) (*models.PaymentMethod, error)
}

// Ledger is the orchestrator's view of the transaction ledger: append only.
type Ledger interface {
	Append(ctx context.Context, txn *models.Transaction) error
}

// ChargeIntent describes one charge attempt against a subscription.
type ChargeIntent struct {
	Subscription *models.Subscription
	Plan         *models.Plan
	// PaymentMethodID overrides the subscription's method when set (manual
	// retry with a new card).
	PaymentMethodID string
	// PeriodStart/PeriodEnd is the billing window this charge pays for.
	PeriodStart time.Time
	PeriodEnd   time.Time
	Reason      types.SubscriptionChangeReason
}

func (i *ChargeIntent) methodID() string {
	if i.PaymentMethodID != "" {
		return i.PaymentMethodID
	}
	return i.Subscription.PaymentMethodID
}

// Orchestrator executes single charge attempts. Every attempt, whatever its
// outcome, appends exactly one Transaction to the ledger; a charge whose
// record cannot be persisted is reported as an infrastructure error.
type Orchestrator struct {
	gw      gateway.PaymentGateway
	methods MethodStore
	ledger  Ledger
	clock   clock.Clock
	cfg     *cfgpkg.Config
	log     *zap.SugaredLogger
}

func NewOrchestrator(gw gateway.PaymentGateway, methods MethodStore, ledger Ledger, clk clock.Clock, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{gw: gw, methods: methods, ledger: ledger, clock: clk, cfg: cfg, log: log}
}

// Charge looks up the payment method, calls the gateway under a bounded
// timeout, and records the attempt. The returned Transaction carries the
// outcome; a non-nil error means infrastructure failure, never a declined
// charge.
func (o *Orchestrator) Charge(ctx context.Context, intent *ChargeIntent) (*models.Transaction, error) {
	methodID := intent.methodID()

	var snapshot *types.PaymentMethodDetails
	var failureReason string
	var providerRef string

	method, err := o.methods.FindByID(ctx, methodID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		failureReason = "payment method not found"
	case err != nil:
		return nil, fmt.Errorf("failed to load payment method %s: %w", methodID, err)
	default:
		snapshot = &types.PaymentMethodDetails{
			Type:        method.Type,
			Last4:       method.Last4,
			ExpiryMonth: method.ExpiryMonth,
			ExpiryYear:  method.ExpiryYear,
		}
	}

	now := o.clock.Now()
	invoice := tool.GenerateInvoiceNumber(now)

	if failureReason == "" {
		chargeCtx, cancel := context.WithTimeout(ctx, o.cfg.Billing.ChargeTimeout)
		res, err := o.gw.Charge(chargeCtx, &gateway.ChargeRequest{
			Amount:        intent.Plan.Price,
			Currency:      intent.Plan.Currency,
			Method:        snapshot,
			InvoiceNumber: invoice,
		})
		cancel()
		switch {
		case err == nil:
			providerRef = res.ProviderTransactionID
		case errors.Is(err, gateway.ErrDeclined):
			failureReason = "payment declined"
		default:
			// Timeouts and transport errors resolve into a failed attempt;
			// they must never escape the batch loop as exceptions.
			failureReason = fmt.Sprintf("gateway error: %v", err)
		}
	}

	txn := &models.Transaction{
		ID:                   tool.GenerateUUIDV7(),
		SubscriptionID:       intent.Subscription.ID,
		UserID:               intent.Subscription.UserID,
		PlanID:               intent.Plan.ID,
		Amount:               intent.Plan.Price,
		Currency:             intent.Plan.Currency,
		PaymentMethodID:      methodID,
		PaymentMethodDetails: datatypes.NewJSONType(snapshot),
		InvoiceNumber:        invoice,
		BillingPeriodStart:   intent.PeriodStart,
		BillingPeriodEnd:     intent.PeriodEnd,
		Metadata:             datatypes.JSONMap{"reason": string(intent.Reason)},
		CreatedAt:            now,
	}
	if failureReason == "" {
		txn.Status = types.TransactionStatusSucceeded
		txn.ProviderTransactionID = &providerRef
	} else {
		txn.Status = types.TransactionStatusFailed
		txn.FailureReason = &failureReason
	}

	if err := o.ledger.Append(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record charge attempt: %w", err)
	}

	metrics.ChargeAttempts.WithLabelValues(string(txn.Status)).Inc()
	log := logctx.FromCtx(ctx, o.log)
	if txn.Succeeded() {
		log.Infow("charge succeeded",
			"subscription_id", intent.Subscription.ID,
			"invoice_number", invoice,
			"provider_transaction_id", providerRef,
		)
	} else {
		log.Warnw("charge failed",
			"subscription_id", intent.Subscription.ID,
			"invoice_number", invoice,
			"failure_reason", failureReason,
		)
	}
	return txn, nil
}
