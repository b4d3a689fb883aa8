package repository

import (
	"context"
	"errors"

	"github.com/amirphl/onboarding/models"
	"gorm.io/gorm"
)

// BusinessRepositoryImpl implements BusinessRepository interface
type BusinessRepositoryImpl struct {
	*BaseRepository[models.Business]
}

// NewBusinessRepository creates a new business repository
func NewBusinessRepository(db *gorm.DB) BusinessRepository {
	return &BusinessRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Business](db, "businesses"),
	}
}

func (r *BusinessRepositoryImpl) ByEcarID(ctx context.Context, ecarID string) (*models.Business, error) {
	var business models.Business
	err := r.getDB(ctx).Where("ecar_id = ?", ecarID).First(&business).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError("find business by ecar id", err)
	}
	return &business, nil
}

// AccountBusinessRepositoryImpl implements AccountBusinessRepository interface
type AccountBusinessRepositoryImpl struct {
	*BaseRepository[models.AccountBusiness]
}

// NewAccountBusinessRepository creates a new attachment repository
func NewAccountBusinessRepository(db *gorm.DB) AccountBusinessRepository {
	return &AccountBusinessRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AccountBusiness](db, "account_businesses"),
	}
}

// BusinessIDsByAccount lists the businesses an account is attached to, oldest attachment first
func (r *AccountBusinessRepositoryImpl) BusinessIDsByAccount(ctx context.Context, accountID uint) ([]uint, error) {
	var ids []uint
	err := r.getDB(ctx).
		Model(&models.AccountBusiness{}).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Pluck("business_id", &ids).Error
	if err != nil {
		return nil, NewPersistenceError("list account businesses", err)
	}
	return ids, nil
}

func (r *AccountBusinessRepositoryImpl) CountByBusiness(ctx context.Context, businessID uint) (int64, error) {
	var count int64
	err := r.getDB(ctx).
		Model(&models.AccountBusiness{}).
		Where("business_id = ?", businessID).
		Count(&count).Error
	if err != nil {
		return 0, NewPersistenceError("count business accounts", err)
	}
	return count, nil
}
