package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Verification challenge constants
const (
	// VerificationCodeExpiry is the time-to-live for verification codes (5 minutes)
	VerificationCodeExpiry = 5 * time.Minute

	// VerificationMaxAttempts is how many wrong codes a challenge tolerates
	VerificationMaxAttempts = 3

	// VerificationResendCooldown is the minimum gap between two re-issued challenges
	VerificationResendCooldown = 60 * time.Second

	// VerificationCodeMin and VerificationCodeSpan bound the six digit codes
	VerificationCodeMin  = 100000
	VerificationCodeSpan = 900000
)

// Handle constants
const (
	// DefaultHandleBase is used when a first name yields no usable slug characters
	DefaultHandleBase = "user"

	// MaxHandleBaseLength caps the slug part of a handle before any suffix
	MaxHandleBaseLength = 48
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400

	// RequestTimeout bounds the business work of a single HTTP request
	RequestTimeout = 30 * time.Second
)
