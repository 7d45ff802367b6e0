package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/pkg/types"
)

type WebhookStore struct {
	db *gorm.DB
}

func NewWebhookStore(db *gorm.DB) *WebhookStore {
	return &WebhookStore{db: db}
}

func (s *WebhookStore) Create(ctx context.Context, wh *models.Webhook) error {
	return s.db.WithContext(ctx).Create(wh).Error
}

func (s *WebhookStore) ListByUser(ctx context.Context, userID string) ([]*models.Webhook, error) {
	var whs []*models.Webhook
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&whs).Error; err != nil {
		return nil, err
	}
	return whs, nil
}

// ListActiveForEvent returns the user's active webhooks subscribed to event.
// Event membership is checked in Go; the events column is a small jsonb array.
func (s *WebhookStore) ListActiveForEvent(ctx context.Context, userID string, event types.WebhookEventType) ([]*models.Webhook, error) {
	var whs []*models.Webhook
	if err := s.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).Find(&whs).Error; err != nil {
		return nil, err
	}
	out := whs[:0]
	for _, wh := range whs {
		if wh.SubscribedTo(event) {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (s *WebhookStore) Delete(ctx context.Context, id, userID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Webhook{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordDeliveryResult updates delivery bookkeeping after an attempt. A
// success resets the failure counter; a failure increments it.
func (s *WebhookStore) RecordDeliveryResult(ctx context.Context, id, status, response string, success bool) error {
	cols := map[string]any{
		"last_status":   status,
		"last_response": response,
	}
	if success {
		cols["failed_attempts"] = 0
	} else {
		cols["failed_attempts"] = gorm.Expr("failed_attempts + 1")
	}
	return s.db.WithContext(ctx).Model(&models.Webhook{}).Where("id = ?", id).Updates(cols).Error
}
