// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/onboarding/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
}

// AccountRepository defines operations for accounts
type AccountRepository interface {
	Repository[models.Account]
	ByEmail(ctx context.Context, email string) (*models.Account, error)
	// HandlesWithBase lists handles equal to base or of the form base-<suffix>
	HandlesWithBase(ctx context.Context, base string) ([]string, error)
	// RegistrationView loads the account with its role and the restricted profile projection
	RegistrationView(ctx context.Context, id uint) (*models.Account, error)
	MarkEmailVerified(ctx context.Context, id uint, at time.Time) error
}

// ProfileRepository defines operations for profiles
type ProfileRepository interface {
	Repository[models.Profile]
	ByAccountID(ctx context.Context, accountID uint) (*models.Profile, error)
}

// BusinessRepository defines operations for businesses
type BusinessRepository interface {
	Repository[models.Business]
	ByEcarID(ctx context.Context, ecarID string) (*models.Business, error)
}

// AccountBusinessRepository defines operations for account to business attachments
type AccountBusinessRepository interface {
	Repository[models.AccountBusiness]
	BusinessIDsByAccount(ctx context.Context, accountID uint) ([]uint, error)
	CountByBusiness(ctx context.Context, businessID uint) (int64, error)
}

// VerificationChallengeRepository defines operations for verification challenges
type VerificationChallengeRepository interface {
	Repository[models.VerificationChallenge]
	// ActiveByAccountAndChannel returns the newest pending challenge, or nil
	ActiveByAccountAndChannel(ctx context.Context, accountID uint, channel string) (*models.VerificationChallenge, error)
	// ActiveForUpdate is ActiveByAccountAndChannel holding a row lock; call it inside a transaction
	ActiveForUpdate(ctx context.Context, accountID uint, channel string) (*models.VerificationChallenge, error)
	ListByAccountAndChannel(ctx context.Context, accountID uint, channel string) ([]*models.VerificationChallenge, error)
	// ExpireActive marks every pending challenge for the pair as expired
	ExpireActive(ctx context.Context, accountID uint, channel string) (int64, error)
	RecordFailedAttempt(ctx context.Context, id uint) error
	UpdateStatus(ctx context.Context, id uint, status string, consumedAt *time.Time) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog]
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error)
}

// AccountStore is the creation path for accounts and everything created with them
type AccountStore interface {
	// CreateAccount persists the account, its role specific profile and business linkage as one unit of work
	CreateAccount(ctx context.Context, credentials models.Credentials, role models.RoleDetails) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	LoadRegistered(ctx context.Context, accountID uint) (*models.Account, error)
	MarkEmailVerified(ctx context.Context, accountID uint, at time.Time) error
}
