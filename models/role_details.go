package models

import (
	"github.com/shopspring/decimal"
)

// RoleDetails is the closed set of role variants an account can be registered with.
// Each variant carries only the fields its role needs; the unexported method keeps
// the set closed to this package.
type RoleDetails interface {
	RoleID() uint
	Validate() error
	isRoleDetails()
}

// PlainUser registers an account with an empty profile and no business
type PlainUser struct{}

func (PlainUser) RoleID() uint    { return RoleIDPlainUser }
func (PlainUser) Validate() error { return nil }
func (PlainUser) isRoleDetails()  {}

// BusinessOwner registers an account together with a brand new business
type BusinessOwner struct {
	Licence string
	EcarID  string
}

func (BusinessOwner) RoleID() uint   { return RoleIDBusinessOwner }
func (BusinessOwner) isRoleDetails() {}

func (b BusinessOwner) Validate() error {
	if b.Licence == "" {
		return NewValidationError("licence", "licence is required for business owners")
	}
	if b.EcarID == "" {
		return NewValidationError("ecar_id", "ecar id is required for business owners")
	}
	return nil
}

// Agent attaches an account to an existing business and records its contract metadata
type Agent struct {
	BusinessID                      uint
	ContractYearStart               int
	TotalCommissionThisContractYear decimal.Decimal
}

func (Agent) RoleID() uint   { return RoleIDAgent }
func (Agent) isRoleDetails() {}

func (a Agent) Validate() error {
	if a.BusinessID == 0 {
		return NewValidationError("business_id", "agents must be attached to an existing business")
	}
	if a.ContractYearStart <= 0 {
		return NewValidationError("contract_year_start", "contract year start must be positive")
	}
	if a.TotalCommissionThisContractYear.IsNegative() {
		return NewValidationError("total_commission_this_contract_year", "commission cannot be negative")
	}
	return nil
}

// Credentials are the role independent registration inputs
type Credentials struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (c Credentials) Validate() error {
	switch {
	case c.FirstName == "":
		return NewValidationError("first_name", "first name is required")
	case c.LastName == "":
		return NewValidationError("last_name", "last name is required")
	case c.Email == "":
		return NewValidationError("email", "email is required")
	case c.Password == "":
		return NewValidationError("password", "password is required")
	}
	return nil
}
