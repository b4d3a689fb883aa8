package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_accounts_uuid" json:"uuid"`
	Handle    string    `gorm:"size:64;not null;uniqueIndex:uk_accounts_handle" json:"handle"`
	FirstName string    `gorm:"size:255;not null" json:"first_name"`
	LastName  string    `gorm:"size:255;not null" json:"last_name"`

	Email        string `gorm:"size:255;not null;uniqueIndex:uk_accounts_email" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"` // Never serialize password hash

	// Role is fixed at creation
	RoleID uint `gorm:"not null;index:idx_accounts_role_id" json:"role_id"`
	Role   Role `gorm:"foreignKey:RoleID;references:ID" json:"role,omitempty"`

	IsEmailVerified *bool      `gorm:"default:false" json:"is_email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	IsActive        *bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Profile *Profile `gorm:"foreignKey:AccountID" json:"profile,omitempty"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) Verified() bool {
	return a.IsEmailVerified != nil && *a.IsEmailVerified
}
