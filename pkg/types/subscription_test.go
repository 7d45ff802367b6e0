package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionStatus_Terminal(t *testing.T) {
	require.True(t, SubscriptionStatusCanceled.Terminal())
	require.True(t, SubscriptionStatusExpired.Terminal())
	require.False(t, SubscriptionStatusActive.Terminal())
	require.False(t, SubscriptionStatusPastDue.Terminal())
	require.False(t, SubscriptionStatusTrial.Terminal())
	require.False(t, SubscriptionStatusPending.Terminal())
}

func TestSubscriptionStatus_Retryable(t *testing.T) {
	require.True(t, SubscriptionStatusPastDue.Retryable())
	require.True(t, SubscriptionStatusPending.Retryable())
	require.True(t, SubscriptionStatusTrial.Retryable())
	require.False(t, SubscriptionStatusActive.Retryable())
	require.False(t, SubscriptionStatusCanceled.Retryable())
	require.False(t, SubscriptionStatusExpired.Retryable())
}

func TestBillingCycle_Next(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC), BillingCycleMonthly.Next(from))
	require.Equal(t, time.Date(2027, 1, 15, 10, 0, 0, 0, time.UTC), BillingCycleYearly.Next(from))
}

func TestBillingCycle_NextNormalizesShortMonths(t *testing.T) {
	// Jan 31 + 1 month lands on Mar 3 (2026 is not a leap year); the period
	// stays a full calendar month by Go's AddDate normalization rules.
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), BillingCycleMonthly.Next(from))
}
