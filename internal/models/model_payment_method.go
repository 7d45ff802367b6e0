package models

import "time"

// PaymentMethod is owned by the account surface; billing only reads it to take
// the charge-time snapshot.
type PaymentMethod struct {
	ID          string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID      string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Type        string    `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Last4       string    `gorm:"column:last4;type:varchar(4);not null" json:"last4"`
	ExpiryMonth int       `gorm:"column:expiry_month;not null" json:"expiry_month"`
	ExpiryYear  int       `gorm:"column:expiry_year;not null" json:"expiry_year"`
	IsDefault   bool      `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PaymentMethod) TableName() string {
	return "payment_method"
}
