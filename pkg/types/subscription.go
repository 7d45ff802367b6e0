package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

// Retryable reports whether a manual payment retry is permitted in s.
func (s SubscriptionStatus) Retryable() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusTrial, SubscriptionStatusPastDue:
		return true
	}
	return false
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonSignup      SubscriptionChangeReason = "signup"
	SubscriptionChangeReasonRenewal     SubscriptionChangeReason = "renewal"
	SubscriptionChangeReasonTrialEnd    SubscriptionChangeReason = "trialEnd"
	SubscriptionChangeReasonRetry       SubscriptionChangeReason = "retry"
	SubscriptionChangeReasonCancel      SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonPlanRetired SubscriptionChangeReason = "planRetired"
	SubscriptionChangeReasonGraceLapsed SubscriptionChangeReason = "graceLapsed"
	SubscriptionChangeReasonDunning     SubscriptionChangeReason = "dunning"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Next returns the period end one billing cycle after from.
func (c BillingCycle) Next(from time.Time) time.Time {
	if c == BillingCycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
