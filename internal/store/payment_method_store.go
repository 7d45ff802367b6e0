package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/models"
)

type PaymentMethodStore struct {
	db *gorm.DB
}

func NewPaymentMethodStore(db *gorm.DB) *PaymentMethodStore {
	return &PaymentMethodStore{db: db}
}

func (s *PaymentMethodStore) FindByID(ctx context.Context, id string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&pm).Error; err != nil {
		return nil, err
	}
	return &pm, nil
}

func (s *PaymentMethodStore) FindOneForUser(ctx context.Context, id, userID string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&pm).Error; err != nil {
		return nil, err
	}
	return &pm, nil
}

func (s *PaymentMethodStore) ListByUser(ctx context.Context, userID string) ([]*models.PaymentMethod, error) {
	var pms []*models.PaymentMethod
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&pms).Error; err != nil {
		return nil, err
	}
	return pms, nil
}

func (s *PaymentMethodStore) Create(ctx context.Context, pm *models.PaymentMethod) error {
	return s.db.WithContext(ctx).Create(pm).Error
}
