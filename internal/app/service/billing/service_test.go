package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/pkg/types"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestCreate_TrialPlanStartsTrialWithoutCharge(t *testing.T) {
	h := newHarness(testNow)
	h.addPlan(trialPlan("plan-1", 14))
	h.addMethod(&models.PaymentMethod{ID: "pm-1", UserID: "user-1", Type: "card", Last4: "4242"})

	sub, err := h.svc.Create(context.Background(), &CreateRequest{UserID: "user-1", PlanID: "plan-1", PaymentMethodID: "pm-1"})
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEndDate)
	require.Equal(t, testNow.Add(14*24*time.Hour), *sub.TrialEndDate)
	require.Equal(t, 0, h.charger.chargeCount())
	require.True(t, h.notifier.has(types.WebhookEventSubscriptionCreated))
}

func TestCreate_NoTrialChargesImmediately(t *testing.T) {
	h := newHarness(testNow)
	h.addPlan(monthlyPlan("plan-1"))
	h.addMethod(&models.PaymentMethod{ID: "pm-1", UserID: "user-1"})
	h.script(chargeOutcome{succeed: true})

	sub, err := h.svc.Create(context.Background(), &CreateRequest{UserID: "user-1", PlanID: "plan-1", PaymentMethodID: "pm-1"})
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Equal(t, testNow, sub.CurrentPeriodStart)
	require.Equal(t, testNow.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
	require.Equal(t, 0, sub.FailedAttempts)
	require.NotNil(t, sub.LastTransactionID)
	require.Equal(t, 1, h.charger.chargeCount())
}

func TestCreate_DeclinedChargeSurfacesFailureAfterPersisting(t *testing.T) {
	h := newHarness(testNow)
	h.addPlan(monthlyPlan("plan-1"))
	h.addMethod(&models.PaymentMethod{ID: "pm-1", UserID: "user-1"})
	h.script(chargeOutcome{succeed: false})

	sub, err := h.svc.Create(context.Background(), &CreateRequest{UserID: "user-1", PlanID: "plan-1", PaymentMethodID: "pm-1"})
	require.ErrorIs(t, err, ErrChargeFailed)
	require.NotNil(t, sub)

	stored := h.subs.get(sub.ID)
	require.Equal(t, 1, stored.FailedAttempts)
	require.Equal(t, types.SubscriptionStatusPending, stored.Status)
	require.Len(t, h.charger.appended, 1)
	require.Equal(t, types.TransactionStatusFailed, h.charger.appended[0].Status)
	require.True(t, h.notifier.has(types.WebhookEventPaymentFailed))
}

func TestCreate_InactivePlanRejected(t *testing.T) {
	h := newHarness(testNow)
	p := monthlyPlan("plan-1")
	p.IsActive = false
	h.addPlan(p)
	h.addMethod(&models.PaymentMethod{ID: "pm-1", UserID: "user-1"})

	_, err := h.svc.Create(context.Background(), &CreateRequest{UserID: "user-1", PlanID: "plan-1", PaymentMethodID: "pm-1"})
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCreate_UnknownPaymentMethodRejected(t *testing.T) {
	h := newHarness(testNow)
	h.addPlan(monthlyPlan("plan-1"))
	h.addMethod(&models.PaymentMethod{ID: "pm-1", UserID: "someone-else"})

	_, err := h.svc.Create(context.Background(), &CreateRequest{UserID: "user-1", PlanID: "plan-1", PaymentMethodID: "pm-1"})
	require.ErrorIs(t, err, ErrPaymentMethodNotFound)
}

func TestCreate_DuplicateLiveSubscriptionRejected(t *testing.T) {
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 1, 0)))
	h.addPlan(monthlyPlan("plan-1"))
	h.addMethod(&models.PaymentMethod{ID: "pm-1", UserID: "user-1"})

	_, err := h.svc.Create(context.Background(), &CreateRequest{UserID: "user-1", PlanID: "plan-1", PaymentMethodID: "pm-1"})
	require.ErrorIs(t, err, ErrDuplicateSubscription)
	require.Equal(t, 0, h.charger.chargeCount())
}

func TestCancel_Immediate(t *testing.T) {
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 1, 0)))

	sub, err := h.svc.Cancel(context.Background(), "user-1", "sub-1", true)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	require.Equal(t, testNow, *sub.CanceledAt)
	require.True(t, h.notifier.has(types.WebhookEventSubscriptionCanceled))
}

func TestCancel_AtPeriodEndKeepsAccess(t *testing.T) {
	periodEnd := testNow.AddDate(0, 1, 0)
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", periodEnd))

	sub, err := h.svc.Cancel(context.Background(), "user-1", "sub-1", false)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.True(t, sub.CancelAtPeriodEnd)
	require.Nil(t, sub.CanceledAt)
	require.Equal(t, periodEnd, sub.CurrentPeriodEnd)
	require.True(t, h.notifier.has(types.WebhookEventSubscriptionUpdated))
}

func TestCancel_TerminalStateRejected(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow)
	sub.Status = types.SubscriptionStatusExpired
	h := newHarness(testNow, sub)

	_, err := h.svc.Cancel(context.Background(), "user-1", "sub-1", true)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_WrongUserGetsNotFound(t *testing.T) {
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 1, 0)))

	_, err := h.svc.Cancel(context.Background(), "user-2", "sub-1", true)
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestCancel_ConcurrentChangeReturnsReloadedRow(t *testing.T) {
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 1, 0)))
	h.subs.forceConflict = true

	sub, err := h.svc.Cancel(context.Background(), "user-1", "sub-1", true)
	require.NoError(t, err)
	// the stored row is untouched: the conflicting writer owns the outcome
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.False(t, h.notifier.has(types.WebhookEventSubscriptionCanceled))
}

func TestRetry_SuccessActivatesWithFreshPeriod(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 0, -20))
	sub.Status = types.SubscriptionStatusPastDue
	sub.FailedAttempts = 3
	h := newHarness(testNow, sub)
	h.addPlan(monthlyPlan("plan-1"))
	h.script(chargeOutcome{succeed: true})

	updated, err := h.svc.Retry(context.Background(), "user-1", "sub-1", "")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, updated.Status)
	require.Equal(t, testNow, updated.CurrentPeriodStart)
	require.Equal(t, testNow.AddDate(0, 1, 0), updated.CurrentPeriodEnd)
	require.Equal(t, 0, updated.FailedAttempts)
	require.True(t, h.notifier.has(types.WebhookEventPaymentSucceeded))
	require.True(t, h.notifier.has(types.WebhookEventSubscriptionRenewed))
}

func TestRetry_WithMethodOverridePersistsNewMethod(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 0, -1))
	sub.Status = types.SubscriptionStatusPastDue
	sub.FailedAttempts = 3
	h := newHarness(testNow, sub)
	h.addPlan(monthlyPlan("plan-1"))
	h.addMethod(&models.PaymentMethod{ID: "pm-2", UserID: "user-1"})
	h.script(chargeOutcome{succeed: true})

	updated, err := h.svc.Retry(context.Background(), "user-1", "sub-1", "pm-2")
	require.NoError(t, err)
	require.Equal(t, "pm-2", updated.PaymentMethodID)
	require.Equal(t, "pm-2", h.charger.intents[0].PaymentMethodID)
}

func TestRetry_UnknownOverrideRejectedBeforeCharging(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 0, -1))
	sub.Status = types.SubscriptionStatusPastDue
	h := newHarness(testNow, sub)
	h.addPlan(monthlyPlan("plan-1"))

	_, err := h.svc.Retry(context.Background(), "user-1", "sub-1", "pm-missing")
	require.ErrorIs(t, err, ErrPaymentMethodNotFound)
	require.Equal(t, 0, h.charger.chargeCount())
}

func TestRetry_FailureCountsAttempt(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 0, -1))
	sub.Status = types.SubscriptionStatusPastDue
	sub.FailedAttempts = 3
	h := newHarness(testNow, sub)
	h.addPlan(monthlyPlan("plan-1"))
	h.script(chargeOutcome{succeed: false})

	_, err := h.svc.Retry(context.Background(), "user-1", "sub-1", "")
	require.ErrorIs(t, err, ErrChargeFailed)

	stored := h.subs.get("sub-1")
	require.Equal(t, 4, stored.FailedAttempts)
	require.Equal(t, types.SubscriptionStatusPastDue, stored.Status)
}

func TestRetry_ActiveSubscriptionRejected(t *testing.T) {
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 1, 0)))
	h.addPlan(monthlyPlan("plan-1"))

	_, err := h.svc.Retry(context.Background(), "user-1", "sub-1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, 0, h.charger.chargeCount())
}

func TestGet_ScopedToOwner(t *testing.T) {
	h := newHarness(testNow, activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.AddDate(0, 1, 0)))

	sub, err := h.svc.Get(context.Background(), "user-1", "sub-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", sub.ID)

	_, err = h.svc.Get(context.Background(), "user-2", "sub-1")
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}
