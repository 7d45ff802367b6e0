package billing

import (
	"context"
	"fmt"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/logctx"
	"github.com/fatflowers/biller/pkg/metrics"
	"github.com/fatflowers/biller/pkg/types"
)

// ReconcileStatuses is the status job entrypoint: it lapses subscriptions
// flagged cancel-at-period-end whose period has ended, and expires past_due
// subscriptions that outlived the grace period without recovering.
func (s *Service) ReconcileStatuses(ctx context.Context) (*RunSummary, error) {
	log := logctx.FromCtx(ctx, s.log)
	now := s.clock.Now()
	log.Infow("starting subscription status job")

	lapsed, err := s.subs.FindPeriodEndCancellations(ctx, now)
	if err != nil {
		metrics.JobRuns.WithLabelValues("status", "error").Inc()
		return nil, fmt.Errorf("failed to load period-end cancellations: %w", err)
	}
	summary := s.runBatch(ctx, "status", lapsed, s.cancelAtPeriodEnd)

	graceCutoff := now.Add(-s.cfg.Billing.GracePeriod())
	stale, err := s.subs.FindLapsedPastDue(ctx, graceCutoff)
	if err != nil {
		metrics.JobRuns.WithLabelValues("status", "error").Inc()
		return summary, fmt.Errorf("failed to load lapsed past_due subscriptions: %w", err)
	}
	summary.merge(s.runBatch(ctx, "status", stale, s.expireOne))

	metrics.JobRuns.WithLabelValues("status", "ok").Inc()
	log.Infow("subscription status job completed",
		"processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

// cancelAtPeriodEnd completes a deferred cancellation once the paid period
// has lapsed.
func (s *Service) cancelAtPeriodEnd(ctx context.Context, sub *models.Subscription) (itemOutcome, error) {
	now := s.clock.Now()
	canceled := types.SubscriptionStatusCanceled
	patch := &store.Patch{Status: &canceled, CanceledAt: &now}
	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to cancel subscription at period end: %w", err)
	}
	if !ok {
		logctx.FromCtx(ctx, s.log).Debugw("period-end cancel skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return outcomeSkipped, nil
	}
	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return outcomeFailed, err
	}
	s.writeChangeLog(ctx, sub, updated, types.SubscriptionChangeReasonCancel, nil)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionCanceled, updated)
	logctx.FromCtx(ctx, s.log).Infow("subscription canceled at period end", "subscription_id", sub.ID)
	return outcomeSucceeded, nil
}

// expireOne terminates a past_due subscription whose grace period ran out.
func (s *Service) expireOne(ctx context.Context, sub *models.Subscription) (itemOutcome, error) {
	expired := types.SubscriptionStatusExpired
	patch := &store.Patch{Status: &expired}
	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to expire subscription: %w", err)
	}
	if !ok {
		logctx.FromCtx(ctx, s.log).Debugw("expire skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return outcomeSkipped, nil
	}
	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return outcomeFailed, err
	}
	s.writeChangeLog(ctx, sub, updated, types.SubscriptionChangeReasonGraceLapsed, nil)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionUpdated, updated)
	logctx.FromCtx(ctx, s.log).Infow("past_due subscription expired", "subscription_id", sub.ID)
	return outcomeSucceeded, nil
}
