package models

import (
	"time"
)

type Business struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Licence   string    `gorm:"size:100;not null" json:"licence"`
	EcarID    string    `gorm:"size:100;not null;uniqueIndex:uk_businesses_ecar_id" json:"ecar_id"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Business) TableName() string {
	return "businesses"
}

// AccountBusiness attaches an account to a business. Attachments are additive.
type AccountBusiness struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  uint      `gorm:"not null;uniqueIndex:uk_account_businesses_pair" json:"account_id"`
	BusinessID uint      `gorm:"not null;uniqueIndex:uk_account_businesses_pair;index:idx_account_businesses_business_id" json:"business_id"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (AccountBusiness) TableName() string {
	return "account_businesses"
}
