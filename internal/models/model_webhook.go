package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/biller/pkg/types"
)

// Webhook is an outbound event endpoint registered by a user. Delivery
// bookkeeping (LastStatus, FailedAttempts) belongs to the notifier and never
// feeds back into billing decisions.
type Webhook struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	URL    string `gorm:"column:url;type:varchar(512);not null" json:"url"`
	Secret string `gorm:"column:secret;type:varchar(128);not null" json:"-"`
	// Events is the list of event types this endpoint subscribed to.
	Events         datatypes.JSONSlice[types.WebhookEventType] `gorm:"column:events;type:jsonb;default:'[]'" json:"events"`
	IsActive       bool                                        `gorm:"column:is_active;not null;default:true" json:"is_active"`
	LastStatus     string                                      `gorm:"column:last_status;type:varchar(16)" json:"last_status"`
	LastResponse   string                                      `gorm:"column:last_response;type:text" json:"last_response"`
	FailedAttempts int                                         `gorm:"column:failed_attempts;not null;default:0" json:"failed_attempts"`
	CreatedAt      time.Time                                   `json:"created_at"`
	UpdatedAt      time.Time                                   `json:"updated_at"`
}

func (Webhook) TableName() string {
	return "webhook"
}

func (w *Webhook) SubscribedTo(event types.WebhookEventType) bool {
	if w == nil {
		return false
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
