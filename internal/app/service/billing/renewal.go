package billing

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/app/service/payment"
	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/logctx"
	"github.com/fatflowers/biller/pkg/metrics"
	"github.com/fatflowers/biller/pkg/types"
)

// ProcessRenewals is the renewal job entrypoint: charges subscriptions due
// within the lookahead window, then converts expired trials. A returned
// error is an infrastructure failure; per-subscription charge failures only
// show up in the summary.
func (s *Service) ProcessRenewals(ctx context.Context) (*RunSummary, error) {
	log := logctx.FromCtx(ctx, s.log)
	now := s.clock.Now()
	log.Infow("starting subscription renewal job")

	due, err := s.subs.FindDueForRenewal(ctx, now.Add(s.cfg.Billing.RenewalLookahead))
	if err != nil {
		metrics.JobRuns.WithLabelValues("renewal", "error").Inc()
		return nil, fmt.Errorf("failed to load due subscriptions: %w", err)
	}
	log.Infow("found subscriptions due for renewal", "count", len(due))

	summary := s.runBatch(ctx, "renewal", due, s.renewOne)

	trials, err := s.subs.FindExpiredTrials(ctx, now)
	if err != nil {
		metrics.JobRuns.WithLabelValues("renewal", "error").Inc()
		return summary, fmt.Errorf("failed to load expired trials: %w", err)
	}
	log.Infow("found expired trials", "count", len(trials))

	summary.merge(s.runBatch(ctx, "trial", trials, s.convertTrialOne))

	metrics.JobRuns.WithLabelValues("renewal", "ok").Inc()
	log.Infow("subscription renewal job completed",
		"processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

// renewOne advances one due subscription: cancel without charging when the
// plan was retired, otherwise charge and either roll the period forward or
// count the failure. The new period is anchored at the old period end so the
// lookahead never costs the subscriber paid time.
func (s *Service) renewOne(ctx context.Context, sub *models.Subscription) (itemOutcome, error) {
	plan, err := s.loadPlan(ctx, sub.PlanID)
	if err != nil {
		return outcomeFailed, err
	}
	if plan == nil || !plan.IsActive {
		return s.cancelForRetiredPlan(ctx, sub)
	}

	periodStart := sub.CurrentPeriodEnd
	periodEnd := plan.BillingCycle.Next(periodStart)

	txn, err := s.charger.Charge(ctx, &payment.ChargeIntent{
		Subscription: sub,
		Plan:         plan,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Reason:       types.SubscriptionChangeReasonRenewal,
	})
	if err != nil {
		return outcomeFailed, err
	}

	if txn.Succeeded() {
		updated, err := s.applyChargeSuccess(ctx, sub, txn, periodStart, periodEnd, types.SubscriptionChangeReasonRenewal)
		if err != nil {
			return outcomeFailed, err
		}
		if updated != nil {
			s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionRenewed, updated)
			logctx.FromCtx(ctx, s.log).Infow("subscription renewed", "subscription_id", sub.ID, "period_end", periodEnd)
		}
		return outcomeSucceeded, nil
	}

	if err := s.applyChargeFailure(ctx, sub, txn, types.SubscriptionChangeReasonRenewal); err != nil {
		return outcomeFailed, err
	}
	return outcomeFailed, nil
}

// convertTrialOne settles one subscription whose trial has ended: it either
// converts to paid with a fresh period starting now, or enters dunning with
// its first failed attempt.
func (s *Service) convertTrialOne(ctx context.Context, sub *models.Subscription) (itemOutcome, error) {
	plan, err := s.loadPlan(ctx, sub.PlanID)
	if err != nil {
		return outcomeFailed, err
	}
	if plan == nil || !plan.IsActive {
		return s.cancelForRetiredPlan(ctx, sub)
	}

	now := s.clock.Now()
	periodStart := now
	periodEnd := plan.BillingCycle.Next(periodStart)

	txn, err := s.charger.Charge(ctx, &payment.ChargeIntent{
		Subscription: sub,
		Plan:         plan,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Reason:       types.SubscriptionChangeReasonTrialEnd,
	})
	if err != nil {
		return outcomeFailed, err
	}

	if txn.Succeeded() {
		updated, err := s.applyChargeSuccess(ctx, sub, txn, periodStart, periodEnd, types.SubscriptionChangeReasonTrialEnd)
		if err != nil {
			return outcomeFailed, err
		}
		if updated != nil {
			logctx.FromCtx(ctx, s.log).Infow("trial converted to paid", "subscription_id", sub.ID)
		}
		return outcomeSucceeded, nil
	}

	// First paid charge failed: straight to dunning.
	pastDue := types.SubscriptionStatusPastDue
	one := 1
	patch := &store.Patch{
		Status:             &pastDue,
		FailedAttempts:     &one,
		LastTransactionID:  &txn.ID,
		LastBillingAttempt: &now,
	}
	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to mark trial past_due: %w", err)
	}
	if !ok {
		logctx.FromCtx(ctx, s.log).Debugw("trial conversion skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return outcomeSkipped, nil
	}
	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return outcomeFailed, err
	}
	s.writeChangeLog(ctx, sub, updated, types.SubscriptionChangeReasonTrialEnd, &txn.ID)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventPaymentFailed, txn)
	logctx.FromCtx(ctx, s.log).Warnw("trial conversion payment failed", "subscription_id", sub.ID)
	return outcomeFailed, nil
}

// loadPlan returns (nil, nil) for a missing plan so callers treat it like a
// retired one.
func (s *Service) loadPlan(ctx context.Context, planID string) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
	}
	return plan, nil
}

// cancelForRetiredPlan is the plan-inactive short-circuit: no charge is ever
// attempted against a retired plan.
func (s *Service) cancelForRetiredPlan(ctx context.Context, sub *models.Subscription) (itemOutcome, error) {
	now := s.clock.Now()
	canceled := types.SubscriptionStatusCanceled
	patch := &store.Patch{Status: &canceled, CanceledAt: &now}
	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if !ok {
		logctx.FromCtx(ctx, s.log).Debugw("cancel skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return outcomeSkipped, nil
	}
	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return outcomeFailed, err
	}
	s.writeChangeLog(ctx, sub, updated, types.SubscriptionChangeReasonPlanRetired, nil)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionCanceled, updated)
	logctx.FromCtx(ctx, s.log).Infow("subscription canceled due to inactive plan", "subscription_id", sub.ID)
	return outcomeSucceeded, nil
}
