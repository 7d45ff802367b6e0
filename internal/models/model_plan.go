package models

import (
	"time"

	"github.com/fatflowers/biller/pkg/types"
)

// Plan is a read-only input to billing decisions. Only IsActive changes after
// creation, and only through the admin surface.
type Plan struct {
	ID          string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name        string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
	// Price in minor units of Currency.
	Price           int64              `gorm:"column:price;type:bigint;not null" json:"price"`
	Currency        string             `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	BillingCycle    types.BillingCycle `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	TrialPeriodDays int                `gorm:"column:trial_period_days;not null;default:0" json:"trial_period_days"`
	IsActive        bool               `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

func (p *Plan) HasTrial() bool {
	return p != nil && p.TrialPeriodDays > 0
}

// TrialEnd returns when a trial started at from would end.
func (p *Plan) TrialEnd(from time.Time) time.Time {
	return from.Add(time.Duration(p.TrialPeriodDays) * 24 * time.Hour)
}
