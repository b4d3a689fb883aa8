// Package dto contains Data Transfer Objects for API request and response structures
package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterAgentRequest represents the agent registration form. The business the agent joins
// is taken from the authenticated caller, never from the body.
type RegisterAgentRequest struct {
	FirstName                       string          `json:"first_name" validate:"required,max=255"`
	LastName                        string          `json:"last_name" validate:"required,max=255"`
	Email                           string          `json:"email" validate:"required,email,max=255"`
	Password                        string          `json:"password" validate:"required,min=8,max=72"`
	ContractYearStart               int             `json:"contract_year_start" validate:"required,min=1900,max=2100"`
	TotalCommissionThisContractYear decimal.Decimal `json:"total_commission_this_contract_year" swaggertype:"number"`
}

// RegisterRequest represents the public registration form for plain users and business owners
type RegisterRequest struct {
	AccountType string `json:"account_type" validate:"required,oneof=user business"`
	FirstName   string `json:"first_name" validate:"required,max=255"`
	LastName    string `json:"last_name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=72"`

	// Required when account_type is business
	Licence string `json:"licence,omitempty" validate:"omitempty,max=100"`
	EcarID  string `json:"ecar_id,omitempty" validate:"omitempty,max=100"`
}

// Account type values accepted by RegisterRequest
const (
	AccountTypeUser     = "user"
	AccountTypeBusiness = "business"
)

// RegistrationResponse represents the account bundle returned after registration
type RegistrationResponse struct {
	Account  AccountDTO `json:"account"`
	Verified bool       `json:"verify"`
}

// AccountDTO represents account data for API responses
type AccountDTO struct {
	ID              uint        `json:"id"`
	UUID            string      `json:"uuid"`
	Handle          string      `json:"handle"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	Email           string      `json:"email"`
	Role            RoleDTO     `json:"role"`
	IsEmailVerified bool        `json:"is_email_verified"`
	CreatedAt       time.Time   `json:"created_at"`
	Profile         *ProfileDTO `json:"profile"`
}

// RoleDTO represents the account role
type RoleDTO struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// ProfileDTO is the restricted profile projection exposed after registration
type ProfileDTO struct {
	ID          uint       `json:"id"`
	UserID      uint       `json:"user_id"`
	Phone       *string    `json:"phone"`
	Address     *string    `json:"address"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Bio         *string    `json:"bio"`
}
