package repository

import (
	"context"
	"errors"

	"github.com/amirphl/onboarding/models"
	"gorm.io/gorm"
)

// ProfileRepositoryImpl implements ProfileRepository interface
type ProfileRepositoryImpl struct {
	*BaseRepository[models.Profile]
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &ProfileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Profile](db, "profiles"),
	}
}

func (r *ProfileRepositoryImpl) ByAccountID(ctx context.Context, accountID uint) (*models.Profile, error) {
	var profile models.Profile
	err := r.getDB(ctx).Where("account_id = ?", accountID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError("find profile by account", err)
	}
	return &profile, nil
}
