package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/biller/pkg/types"
)

// Subscription is the billing state for one user/plan pair. It is created at
// sign-up, mutated only through lifecycle transitions, and never deleted:
// canceled and expired rows are retained as history.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	PlanID string                   `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// StartDate is when the subscription was first created.
	StartDate time.Time `gorm:"column:start_date;not null" json:"start_date"`
	// CurrentPeriodStart/CurrentPeriodEnd bound the period already paid for.
	// CurrentPeriodEnd is always strictly after CurrentPeriodStart.
	CurrentPeriodStart time.Time `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"column:current_period_end;not null;index" json:"current_period_end"`
	// TrialEndDate is set iff the plan granted a trial at sign-up.
	TrialEndDate      *time.Time `gorm:"column:trial_end_date;default:null" json:"trial_end_date"`
	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CanceledAt        *time.Time `gorm:"column:canceled_at;default:null" json:"canceled_at"`
	PaymentMethodID   string     `gorm:"column:payment_method_id;type:uuid;not null" json:"payment_method_id"`
	// LastBillingAttempt is the time of the most recent charge attempt, success or failure.
	LastBillingAttempt *time.Time `gorm:"column:last_billing_attempt;default:null" json:"last_billing_attempt"`
	LastTransactionID  *string    `gorm:"column:last_transaction_id;type:uuid;default:null" json:"last_transaction_id"`
	// FailedAttempts counts consecutive failed charges; reset to 0 only by a succeeded charge.
	FailedAttempts int               `gorm:"column:failed_attempts;not null;default:0" json:"failed_attempts"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// InTrial reports whether the subscription is in trial and the trial has not
// yet ended at now.
func (s *Subscription) InTrial(now time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusTrial &&
		s.TrialEndDate != nil &&
		s.TrialEndDate.After(now)
}

// Valid reports whether the subscription currently grants access at now.
func (s *Subscription) Valid(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case types.SubscriptionStatusActive, types.SubscriptionStatusPastDue:
		return true
	case types.SubscriptionStatusTrial:
		return s.TrialEndDate != nil && s.TrialEndDate.After(now)
	}
	return false
}
