package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/pkg/types"
)

// Revision is the version token for conditional subscription updates. It is
// the (status, period end, attempt counter) triple read before deciding a
// transition; any concurrent transition changes at least one of the three.
type Revision struct {
	Status           types.SubscriptionStatus
	CurrentPeriodEnd time.Time
	FailedAttempts   int
}

// RevisionOf captures the version token of a previously loaded subscription.
func RevisionOf(s *models.Subscription) Revision {
	return Revision{
		Status:           s.Status,
		CurrentPeriodEnd: s.CurrentPeriodEnd,
		FailedAttempts:   s.FailedAttempts,
	}
}

// Patch lists the subscription fields a transition may set. Nil fields are
// left untouched.
type Patch struct {
	Status             *types.SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	CanceledAt         *time.Time
	LastBillingAttempt *time.Time
	LastTransactionID  *string
	FailedAttempts     *int
	PaymentMethodID    *string
}

func (p *Patch) columns() map[string]any {
	m := map[string]any{}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.CurrentPeriodStart != nil {
		m["current_period_start"] = *p.CurrentPeriodStart
	}
	if p.CurrentPeriodEnd != nil {
		m["current_period_end"] = *p.CurrentPeriodEnd
	}
	if p.CancelAtPeriodEnd != nil {
		m["cancel_at_period_end"] = *p.CancelAtPeriodEnd
	}
	if p.CanceledAt != nil {
		m["canceled_at"] = *p.CanceledAt
	}
	if p.LastBillingAttempt != nil {
		m["last_billing_attempt"] = *p.LastBillingAttempt
	}
	if p.LastTransactionID != nil {
		m["last_transaction_id"] = *p.LastTransactionID
	}
	if p.FailedAttempts != nil {
		m["failed_attempts"] = *p.FailedAttempts
	}
	if p.PaymentMethodID != nil {
		m["payment_method_id"] = *p.PaymentMethodID
	}
	return m
}

type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

func (s *SubscriptionStore) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SubscriptionStore) FindOneForUser(ctx context.Context, id, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SubscriptionStore) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *SubscriptionStore) FindAllByStatus(ctx context.Context, status types.SubscriptionStatus) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := s.db.WithContext(ctx).Where("status = ?", status).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// FindActiveByUserAndPlan is the duplicate-signup guard.
func (s *SubscriptionStore) FindActiveByUserAndPlan(ctx context.Context, userID, planID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND plan_id = ? AND status IN ?", userID, planID,
			[]types.SubscriptionStatus{types.SubscriptionStatusPending, types.SubscriptionStatusTrial, types.SubscriptionStatusActive, types.SubscriptionStatusPastDue}).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindDueForRenewal returns active, non-canceling subscriptions whose period
// ends at or before cutoff (now plus the renewal lookahead).
func (s *SubscriptionStore) FindDueForRenewal(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND cancel_at_period_end = ? AND current_period_end <= ?",
			types.SubscriptionStatusActive, false, cutoff).
		Order("current_period_end asc").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// FindExpiredTrials returns trial subscriptions whose trial ended at or
// before now. Rows without a trial end date are never due.
func (s *SubscriptionStore) FindExpiredTrials(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND trial_end_date IS NOT NULL AND trial_end_date <= ?", types.SubscriptionStatusTrial, now).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// FindPeriodEndCancellations returns active subscriptions flagged
// cancel-at-period-end whose period has lapsed.
func (s *SubscriptionStore) FindPeriodEndCancellations(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND cancel_at_period_end = ? AND current_period_end <= ?",
			types.SubscriptionStatusActive, true, now).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// FindLapsedPastDue returns past_due subscriptions untouched since cutoff
// (now minus the grace period).
func (s *SubscriptionStore) FindLapsedPastDue(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", types.SubscriptionStatusPastDue, cutoff).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// UpdateIfUnchanged applies patch only if the row still matches expect.
// Returns false with a nil error when the row changed underneath us, which
// callers treat as "skip, already handled".
func (s *SubscriptionStore) UpdateIfUnchanged(ctx context.Context, id string, expect Revision, patch *Patch) (bool, error) {
	cols := patch.columns()
	if len(cols) == 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ? AND current_period_end = ? AND failed_attempts = ?",
			id, expect.Status, expect.CurrentPeriodEnd, expect.FailedAttempts).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
