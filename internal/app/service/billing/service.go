package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/app/service/payment"
	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/clock"
	cfgpkg "github.com/fatflowers/biller/pkg/config"
	"github.com/fatflowers/biller/pkg/logctx"
	"github.com/fatflowers/biller/pkg/tool"
	"github.com/fatflowers/biller/pkg/types"
)

// SubscriptionStore is the lifecycle manager's view of subscription
// persistence. Every mutation goes through UpdateIfUnchanged so overlapping
// job runs cannot advance the same subscription twice.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
	FindOneForUser(ctx context.Context, id, userID string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error)
	FindActiveByUserAndPlan(ctx context.Context, userID, planID string) (*models.Subscription, error)
	FindDueForRenewal(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error)
	FindExpiredTrials(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	FindPeriodEndCancellations(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	FindLapsedPastDue(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error)
	UpdateIfUnchanged(ctx context.Context, id string, expect store.Revision, patch *store.Patch) (bool, error)
}

type PlanStore interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
}

type MethodStore interface {
	FindOneForUser(ctx context.Context, id, userID string) (*models.PaymentMethod, error)
}

// Charger executes one charge attempt and always records it in the ledger.
type Charger interface {
	Charge(ctx context.Context, intent *payment.ChargeIntent) (*models.Transaction, error)
}

// Notifier receives lifecycle events. Best-effort: implementations must not
// block the transition or surface delivery failures.
type Notifier interface {
	Notify(ctx context.Context, userID string, event types.WebhookEventType, payload any)
}

// ChangeLogger persists before/after transition snapshots.
type ChangeLogger interface {
	Log(ctx context.Context, entry *models.SubscriptionLog) error
}

// Manager is the lifecycle surface consumed by HTTP handlers and jobs.
type Manager interface {
	Create(ctx context.Context, req *CreateRequest) (*models.Subscription, error)
	Get(ctx context.Context, userID, id string) (*models.Subscription, error)
	List(ctx context.Context, userID string) ([]*models.Subscription, error)
	Cancel(ctx context.Context, userID, id string, immediate bool) (*models.Subscription, error)
	Retry(ctx context.Context, userID, id, paymentMethodID string) (*models.Subscription, error)
	ProcessRenewals(ctx context.Context) (*RunSummary, error)
	ReconcileStatuses(ctx context.Context) (*RunSummary, error)
}

// Service is the subscription lifecycle state machine. All collaborators are
// injected so transitions can be unit-tested without a live database.
type Service struct {
	cfg       *cfgpkg.Config
	log       *zap.SugaredLogger
	subs      SubscriptionStore
	plans     PlanStore
	methods   MethodStore
	charger   Charger
	notifier  Notifier
	changelog ChangeLogger
	clock     clock.Clock
}

func NewService(
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
	subs SubscriptionStore,
	plans PlanStore,
	methods MethodStore,
	charger Charger,
	notifier Notifier,
	changelog ChangeLogger,
	clk clock.Clock,
) *Service {
	return &Service{
		cfg: cfg, log: log,
		subs: subs, plans: plans, methods: methods,
		charger: charger, notifier: notifier, changelog: changelog,
		clock: clk,
	}
}

type CreateRequest struct {
	UserID          string
	PlanID          string
	PaymentMethodID string
}

// Create signs a user up to a plan. Plans with a trial start in trial without
// a charge; zero-trial plans are charged immediately and activate only on a
// succeeded charge.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Subscription, error) {
	log := logctx.FromCtx(ctx, s.log)

	plan, err := s.plans.FindByID(ctx, req.PlanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if !plan.IsActive {
		return nil, ErrPlanNotFound
	}

	if _, err := s.methods.FindOneForUser(ctx, req.PaymentMethodID, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("failed to load payment method: %w", err)
	}

	existing, err := s.subs.FindActiveByUserAndPlan(ctx, req.UserID, req.PlanID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateSubscription
	}

	now := s.clock.Now()
	sub := &models.Subscription{
		ID:                 tool.GenerateUUIDV7(),
		UserID:             req.UserID,
		PlanID:             req.PlanID,
		Status:             types.SubscriptionStatusPending,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   plan.BillingCycle.Next(now),
		PaymentMethodID:    req.PaymentMethodID,
		Metadata:           datatypes.JSONMap{},
	}
	if plan.HasTrial() {
		trialEnd := plan.TrialEnd(now)
		sub.Status = types.SubscriptionStatusTrial
		sub.TrialEndDate = &trialEnd
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	s.writeChangeLog(ctx, nil, sub, types.SubscriptionChangeReasonSignup, nil)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionCreated, sub)
	log.Infow("subscription created", "subscription_id", sub.ID, "user_id", sub.UserID, "status", sub.Status)

	if plan.HasTrial() {
		return sub, nil
	}

	txn, err := s.charger.Charge(ctx, &payment.ChargeIntent{
		Subscription: sub,
		Plan:         plan,
		PeriodStart:  sub.CurrentPeriodStart,
		PeriodEnd:    sub.CurrentPeriodEnd,
		Reason:       types.SubscriptionChangeReasonSignup,
	})
	if err != nil {
		return sub, fmt.Errorf("failed to charge sign-up: %w", err)
	}

	if txn.Succeeded() {
		updated, err := s.applyChargeSuccess(ctx, sub, txn, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, types.SubscriptionChangeReasonSignup)
		if err != nil {
			return sub, err
		}
		if updated != nil {
			return updated, nil
		}
		return s.subs.FindByID(ctx, sub.ID)
	}

	if err := s.applyChargeFailure(ctx, sub, txn, types.SubscriptionChangeReasonSignup); err != nil {
		return sub, err
	}
	return sub, ErrChargeFailed
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Subscription, error) {
	sub, err := s.subs.FindOneForUser(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *Service) List(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

// Cancel terminates immediately, or flags the subscription to lapse at
// period end; the actual period-end transition happens in the status job.
func (s *Service) Cancel(ctx context.Context, userID, id string, immediate bool) (*models.Subscription, error) {
	sub, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	now := s.clock.Now()
	patch := &store.Patch{}
	if immediate {
		canceled := types.SubscriptionStatusCanceled
		patch.Status = &canceled
		patch.CanceledAt = &now
	} else {
		flag := true
		patch.CancelAtPeriodEnd = &flag
	}

	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if !ok {
		// Lost the race against a concurrent transition; the reloaded row is
		// the answer either way.
		logctx.FromCtx(ctx, s.log).Debugw("cancel skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return s.subs.FindByID(ctx, sub.ID)
	}

	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	reason := types.SubscriptionChangeReasonCancel
	s.writeChangeLog(ctx, sub, updated, reason, nil)
	if immediate {
		s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionCanceled, updated)
	} else {
		s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionUpdated, updated)
	}
	return updated, nil
}

// Retry runs a manual charge for a subscription in dunning. Success activates
// the subscription with a fresh period starting now.
func (s *Service) Retry(ctx context.Context, userID, id, paymentMethodID string) (*models.Subscription, error) {
	sub, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !sub.Status.Retryable() {
		return nil, ErrInvalidTransition
	}

	plan, err := s.plans.FindByID(ctx, sub.PlanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if !plan.IsActive {
		return nil, ErrPlanNotFound
	}

	if paymentMethodID != "" {
		if _, err := s.methods.FindOneForUser(ctx, paymentMethodID, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrPaymentMethodNotFound
			}
			return nil, fmt.Errorf("failed to load payment method: %w", err)
		}
	}

	now := s.clock.Now()
	periodStart := now
	periodEnd := plan.BillingCycle.Next(periodStart)

	txn, err := s.charger.Charge(ctx, &payment.ChargeIntent{
		Subscription:    sub,
		Plan:            plan,
		PaymentMethodID: paymentMethodID,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		Reason:          types.SubscriptionChangeReasonRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to charge retry: %w", err)
	}

	if txn.Succeeded() {
		patch := successPatch(txn, periodStart, periodEnd, now)
		if paymentMethodID != "" {
			patch.PaymentMethodID = &paymentMethodID
		}
		ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
		if err != nil {
			return nil, fmt.Errorf("failed to apply retry: %w", err)
		}
		if !ok {
			logctx.FromCtx(ctx, s.log).Debugw("retry result skipped, subscription changed concurrently", "subscription_id", sub.ID)
			return s.subs.FindByID(ctx, sub.ID)
		}
		updated, err := s.subs.FindByID(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		s.writeChangeLog(ctx, sub, updated, types.SubscriptionChangeReasonRetry, &txn.ID)
		s.notifier.Notify(ctx, sub.UserID, types.WebhookEventPaymentSucceeded, txn)
		s.notifier.Notify(ctx, sub.UserID, types.WebhookEventSubscriptionRenewed, updated)
		return updated, nil
	}

	if err := s.applyChargeFailure(ctx, sub, txn, types.SubscriptionChangeReasonRetry); err != nil {
		return nil, err
	}
	return sub, ErrChargeFailed
}

// successPatch is the canonical post-success transition: active status, new
// period window, counter reset. FailedAttempts is zero iff the latest
// transaction succeeded.
func successPatch(txn *models.Transaction, periodStart, periodEnd, now time.Time) *store.Patch {
	active := types.SubscriptionStatusActive
	zero := 0
	return &store.Patch{
		Status:             &active,
		CurrentPeriodStart: &periodStart,
		CurrentPeriodEnd:   &periodEnd,
		FailedAttempts:     &zero,
		LastTransactionID:  &txn.ID,
		LastBillingAttempt: &now,
	}
}

// applyChargeSuccess returns the reloaded subscription when the update was
// applied, or nil when a concurrent transition won the race.
func (s *Service) applyChargeSuccess(ctx context.Context, sub *models.Subscription, txn *models.Transaction, periodStart, periodEnd time.Time, reason types.SubscriptionChangeReason) (*models.Subscription, error) {
	now := s.clock.Now()
	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), successPatch(txn, periodStart, periodEnd, now))
	if err != nil {
		return nil, fmt.Errorf("failed to apply charge success: %w", err)
	}
	if !ok {
		logctx.FromCtx(ctx, s.log).Debugw("charge success skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return nil, nil
	}
	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	s.writeChangeLog(ctx, sub, updated, reason, &txn.ID)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventPaymentSucceeded, txn)
	return updated, nil
}

// applyChargeFailure increments the attempt counter exactly once, in the
// persisted conditional update, and moves the subscription to past_due when
// the dunning threshold is reached.
func (s *Service) applyChargeFailure(ctx context.Context, sub *models.Subscription, txn *models.Transaction, reason types.SubscriptionChangeReason) error {
	now := s.clock.Now()
	attempts := sub.FailedAttempts + 1
	status := sub.Status
	if attempts >= s.cfg.Billing.MaxFailedAttempts {
		status = types.SubscriptionStatusPastDue
	}
	patch := &store.Patch{
		Status:             &status,
		FailedAttempts:     &attempts,
		LastTransactionID:  &txn.ID,
		LastBillingAttempt: &now,
	}
	ok, err := s.subs.UpdateIfUnchanged(ctx, sub.ID, store.RevisionOf(sub), patch)
	if err != nil {
		return fmt.Errorf("failed to apply charge failure: %w", err)
	}
	if !ok {
		logctx.FromCtx(ctx, s.log).Debugw("charge failure skipped, subscription changed concurrently", "subscription_id", sub.ID)
		return nil
	}
	updated, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	s.writeChangeLog(ctx, sub, updated, types.SubscriptionChangeReasonDunning, &txn.ID)
	s.notifier.Notify(ctx, sub.UserID, types.WebhookEventPaymentFailed, txn)
	logctx.FromCtx(ctx, s.log).Warnw("charge failed",
		"subscription_id", sub.ID, "attempt", attempts, "status", status, "reason", reason)
	return nil
}

// writeChangeLog persists the transition snapshot asynchronously; failures
// are logged and never surfaced to the transition.
func (s *Service) writeChangeLog(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, transactionID *string) {
	entry := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		UserID:         after.UserID,
		SubscriptionID: after.ID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
		Extra:          datatypes.JSONMap{},
	}
	if transactionID != nil {
		entry.Extra["transaction_id"] = *transactionID
	}
	go func() {
		if err := s.changelog.Log(context.WithoutCancel(ctx), entry); err != nil {
			s.log.Errorf("failed to save subscription log: %v", err)
		}
	}()
}
