package billing

import "errors"

var (
	// ErrPlanNotFound covers both a missing plan and a retired one on
	// user-facing paths: neither may start or renew a subscription.
	ErrPlanNotFound = errors.New("plan not found or inactive")

	ErrPaymentMethodNotFound = errors.New("payment method not found")

	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDuplicateSubscription rejects a second live subscription to the
	// same plan for one user.
	ErrDuplicateSubscription = errors.New("user already has an active subscription to this plan")

	// ErrInvalidTransition is returned when an action is requested for a
	// subscription whose state does not permit it. No state is changed.
	ErrInvalidTransition = errors.New("subscription state does not permit this action")

	// ErrChargeFailed is the structured failure surfaced by synchronous
	// paths (sign-up, manual retry) after the failed transaction and the
	// attempt counter have been persisted.
	ErrChargeFailed = errors.New("payment failed")
)
