package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/biller/pkg/types"
)

// Transaction is one row of the append-only charge ledger. Every charge
// attempt, successful or not, writes exactly one Transaction; rows are never
// updated or deleted afterwards.
type Transaction struct {
	ID             string                  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string                  `gorm:"column:subscription_id;type:uuid;not null;index:idx_tx_subscription_id" json:"subscription_id"`
	UserID         string                  `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	PlanID         string                  `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	Amount         int64                   `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency       string                  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status         types.TransactionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// PaymentMethodID references the method charged; PaymentMethodDetails is
	// the snapshot taken at charge time and is kept even if the method is
	// later edited or removed.
	PaymentMethodID      string                                        `gorm:"column:payment_method_id;type:uuid;not null" json:"payment_method_id"`
	PaymentMethodDetails datatypes.JSONType[*types.PaymentMethodDetails] `gorm:"column:payment_method_details;type:jsonb;default:'null'" json:"payment_method_details"`
	InvoiceNumber        string                                        `gorm:"column:invoice_number;type:varchar(64);not null;uniqueIndex" json:"invoice_number"`
	// ProviderTransactionID is set only on succeeded charges.
	ProviderTransactionID *string `gorm:"column:provider_transaction_id;type:varchar(128);default:null" json:"provider_transaction_id"`
	// FailureReason is set only on failed charges.
	FailureReason      *string           `gorm:"column:failure_reason;type:text;default:null" json:"failure_reason"`
	BillingPeriodStart time.Time         `gorm:"column:billing_period_start;not null" json:"billing_period_start"`
	BillingPeriodEnd   time.Time         `gorm:"column:billing_period_end;not null" json:"billing_period_end"`
	Metadata           datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt          time.Time         `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}

func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == types.TransactionStatusSucceeded
}

func (t *Transaction) GetPaymentMethodSnapshot() *types.PaymentMethodDetails {
	if t == nil {
		return nil
	}
	return t.PaymentMethodDetails.Data()
}
