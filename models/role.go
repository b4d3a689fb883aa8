// Package models contains domain entities and business models for the onboarding system
package models

import (
	"time"
)

// Role is the fixed classification of an account
type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:32;not null;uniqueIndex:uk_roles_name" json:"name"`
	DisplayName string    `gorm:"size:50;not null" json:"display_name"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// Role ids are seeded by the schema migration and never change
const (
	RoleIDPlainUser     uint = 1
	RoleIDBusinessOwner uint = 2
	RoleIDAgent         uint = 3
)

// Role name constants
const (
	RoleNamePlainUser     = "plain_user"
	RoleNameBusinessOwner = "business_owner"
	RoleNameAgent         = "agent"
)

// RoleName maps a seeded role id to its name
func RoleName(id uint) string {
	switch id {
	case RoleIDPlainUser:
		return RoleNamePlainUser
	case RoleIDBusinessOwner:
		return RoleNameBusinessOwner
	case RoleIDAgent:
		return RoleNameAgent
	default:
		return ""
	}
}
