package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/biller/pkg/types"
)

func TestReconcileStatuses_PeriodEndCancellationLapses(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.Add(-time.Hour))
	sub.CancelAtPeriodEnd = true
	h := newHarness(testNow, sub)

	summary, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	stored := h.subs.get("sub-1")
	require.Equal(t, types.SubscriptionStatusCanceled, stored.Status)
	require.NotNil(t, stored.CanceledAt)
	require.True(t, h.notifier.has(types.WebhookEventSubscriptionCanceled))
}

func TestReconcileStatuses_PeriodStillRunningNotLapsed(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.Add(time.Hour))
	sub.CancelAtPeriodEnd = true
	h := newHarness(testNow, sub)

	summary, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Processed)
	require.Equal(t, types.SubscriptionStatusActive, h.subs.get("sub-1").Status)
}

func TestReconcileStatuses_PastDueExpiresAfterGrace(t *testing.T) {
	lastAttempt := testNow.Add(-15 * 24 * time.Hour) // grace is 14 days
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.Add(-20*24*time.Hour))
	sub.Status = types.SubscriptionStatusPastDue
	sub.FailedAttempts = 3
	sub.LastBillingAttempt = &lastAttempt
	sub.UpdatedAt = lastAttempt
	h := newHarness(testNow, sub)

	summary, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, types.SubscriptionStatusExpired, h.subs.get("sub-1").Status)
	require.True(t, h.notifier.has(types.WebhookEventSubscriptionUpdated))
}

func TestReconcileStatuses_PastDueInsideGraceUntouched(t *testing.T) {
	lastAttempt := testNow.Add(-2 * 24 * time.Hour)
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.Add(-5*24*time.Hour))
	sub.Status = types.SubscriptionStatusPastDue
	sub.FailedAttempts = 3
	sub.LastBillingAttempt = &lastAttempt
	sub.UpdatedAt = lastAttempt
	h := newHarness(testNow, sub)

	summary, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Processed)
	require.Equal(t, types.SubscriptionStatusPastDue, h.subs.get("sub-1").Status)
}

func TestReconcileStatuses_ConcurrentChangeSkipped(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.Add(-time.Hour))
	sub.CancelAtPeriodEnd = true
	h := newHarness(testNow, sub)
	h.subs.forceConflict = true

	summary, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, types.SubscriptionStatusActive, h.subs.get("sub-1").Status)
}

func TestReconcileStatuses_SecondRunIdempotent(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "plan-1", "pm-1", testNow.Add(-time.Hour))
	sub.CancelAtPeriodEnd = true
	h := newHarness(testNow, sub)

	_, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)

	summary, err := h.svc.ReconcileStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Processed)
}
