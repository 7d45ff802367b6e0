package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/models"
)

type SubscriptionLogStore struct {
	db *gorm.DB
}

func NewSubscriptionLogStore(db *gorm.DB) *SubscriptionLogStore {
	return &SubscriptionLogStore{db: db}
}

func (s *SubscriptionLogStore) Log(ctx context.Context, entry *models.SubscriptionLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *SubscriptionLogStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.SubscriptionLog, error) {
	var entries []*models.SubscriptionLog
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
