package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile holds role specific account data. Contract fields are only set for agents.
type Profile struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AccountID   uint       `gorm:"not null;uniqueIndex:uk_profiles_account_id" json:"user_id"`
	Phone       *string    `gorm:"size:20" json:"phone"`
	Address     *string    `gorm:"size:255" json:"address"`
	DateOfBirth *time.Time `gorm:"type:date" json:"date_of_birth"`
	Bio         *string    `gorm:"type:text" json:"bio"`

	ContractYearStart               *int             `json:"contract_year_start,omitempty"`
	TotalCommissionThisContractYear *decimal.Decimal `gorm:"type:numeric(20,2)" json:"total_commission_this_contract_year,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// ProfileProjection lists the columns exposed right after registration
var ProfileProjection = []string{"id", "account_id", "phone", "address", "date_of_birth", "bio"}

func (p *Profile) HasContract() bool {
	return p.ContractYearStart != nil || p.TotalCommissionThisContractYear != nil
}
