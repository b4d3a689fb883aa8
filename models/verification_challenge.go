package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationChallenge is a time limited, single use code bound to an account and a channel
type VerificationChallenge struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CorrelationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_challenges_correlation_id" json:"correlation_id"`
	AccountID     uint       `gorm:"not null;index:idx_challenges_account_channel" json:"account_id"`
	Channel       string     `gorm:"size:20;not null;index:idx_challenges_account_channel" json:"channel"`
	Code          string     `gorm:"size:6;not null" json:"-"` // Never serialize the code
	TargetValue   string     `gorm:"size:255;not null" json:"target_value"`
	Status        string     `gorm:"size:20;not null;default:pending" json:"status"`
	AttemptsCount int        `gorm:"not null;default:0" json:"attempts_count"`
	MaxAttempts   int        `gorm:"not null;default:3" json:"max_attempts"`
	ExpiresAt     time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (VerificationChallenge) TableName() string {
	return "verification_challenges"
}

// Channel constants
const (
	ChannelEmail = "email"
)

// Challenge status constants
const (
	ChallengeStatusPending  = "pending"
	ChallengeStatusVerified = "verified"
	ChallengeStatusExpired  = "expired"
	ChallengeStatusFailed   = "failed"
)

func (c *VerificationChallenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *VerificationChallenge) IsPending() bool {
	return c.Status == ChallengeStatusPending
}

func (c *VerificationChallenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// IsActive reports whether the challenge is unconsumed, unexpired and still pending
func (c *VerificationChallenge) IsActive() bool {
	return c.IsPending() && !c.IsConsumed() && !c.IsExpired()
}

func (c *VerificationChallenge) CanAttempt() bool {
	return c.AttemptsCount < c.MaxAttempts && c.IsActive()
}
