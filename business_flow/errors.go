// Package businessflow contains the core business logic and use cases for onboarding workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Account-related errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is inactive")

	// Caller-related errors
	ErrCallerHasNoBusiness = errors.New("caller is not attached to any business")

	// Verification-related errors
	ErrNoActiveChallenge       = errors.New("no active verification challenge")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	ErrChallengeExpired        = errors.New("verification code has expired")
	ErrTooManyAttempts         = errors.New("too many verification attempts")
	ErrAlreadyVerified         = errors.New("already verified")
	ErrUnsupportedChannel      = errors.New("unsupported verification channel")
	ErrResendTooSoon           = errors.New("verification code was sent recently")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsCallerHasNoBusiness(err error) bool {
	return errors.Is(err, ErrCallerHasNoBusiness)
}

func IsNoActiveChallenge(err error) bool {
	return errors.Is(err, ErrNoActiveChallenge)
}

func IsInvalidVerificationCode(err error) bool {
	return errors.Is(err, ErrInvalidVerificationCode)
}

func IsChallengeExpired(err error) bool {
	return errors.Is(err, ErrChallengeExpired)
}

func IsTooManyAttempts(err error) bool {
	return errors.Is(err, ErrTooManyAttempts)
}

func IsAlreadyVerified(err error) bool {
	return errors.Is(err, ErrAlreadyVerified)
}

func IsUnsupportedChannel(err error) bool {
	return errors.Is(err, ErrUnsupportedChannel)
}

func IsResendTooSoon(err error) bool {
	return errors.Is(err, ErrResendTooSoon)
}
