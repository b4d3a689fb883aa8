package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/onboarding/models"
	"gorm.io/gorm"
)

// AccountRepositoryImpl implements AccountRepository interface
type AccountRepositoryImpl struct {
	*BaseRepository[models.Account]
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &AccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Account](db, "accounts"),
	}
}

// ByEmail retrieves an account by exact email match
func (r *AccountRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.first(ctx, "find account by email", "email = ?", email)
}

func (r *AccountRepositoryImpl) first(ctx context.Context, op, query string, args ...any) (*models.Account, error) {
	var account models.Account
	err := r.getDB(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError(op, err)
	}
	return &account, nil
}

func (r *AccountRepositoryImpl) HandlesWithBase(ctx context.Context, base string) ([]string, error) {
	var handles []string
	err := r.getDB(ctx).
		Model(&models.Account{}).
		Where("handle = ? OR handle LIKE ?", base, base+"-%").
		Pluck("handle", &handles).Error
	if err != nil {
		return nil, NewPersistenceError("list handles", err)
	}
	return handles, nil
}

func (r *AccountRepositoryImpl) RegistrationView(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := r.getDB(ctx).
		Preload("Role").
		Preload("Profile", func(db *gorm.DB) *gorm.DB {
			return db.Select(models.ProfileProjection)
		}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError("load registered account", err)
	}
	return &account, nil
}

func (r *AccountRepositoryImpl) MarkEmailVerified(ctx context.Context, id uint, at time.Time) error {
	return r.write(ctx, "mark email verified", func(db *gorm.DB) error {
		res := db.Model(&models.Account{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"is_email_verified": true,
				"email_verified_at": at,
				"updated_at":        at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
