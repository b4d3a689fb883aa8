package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VerificationChallengeRepositoryImpl implements VerificationChallengeRepository interface
type VerificationChallengeRepositoryImpl struct {
	*BaseRepository[models.VerificationChallenge]
}

// NewVerificationChallengeRepository creates a new verification challenge repository
func NewVerificationChallengeRepository(db *gorm.DB) VerificationChallengeRepository {
	return &VerificationChallengeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.VerificationChallenge](db, "verification_challenges"),
	}
}

func (r *VerificationChallengeRepositoryImpl) ActiveByAccountAndChannel(ctx context.Context, accountID uint, channel string) (*models.VerificationChallenge, error) {
	return r.active(r.getDB(ctx), "find active challenge", accountID, channel)
}

// ActiveForUpdate row-locks the pending challenge until the surrounding transaction ends.
// Concurrent verifications of the same challenge queue behind the lock and re-read the
// committed attempt count.
func (r *VerificationChallengeRepositoryImpl) ActiveForUpdate(ctx context.Context, accountID uint, channel string) (*models.VerificationChallenge, error) {
	db := r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.active(db, "lock active challenge", accountID, channel)
}

func (r *VerificationChallengeRepositoryImpl) active(db *gorm.DB, op string, accountID uint, channel string) (*models.VerificationChallenge, error) {
	var challenge models.VerificationChallenge
	err := db.
		Where("account_id = ? AND channel = ? AND status = ?", accountID, channel, models.ChallengeStatusPending).
		Order("id DESC").
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError(op, err)
	}
	return &challenge, nil
}

func (r *VerificationChallengeRepositoryImpl) ListByAccountAndChannel(ctx context.Context, accountID uint, channel string) ([]*models.VerificationChallenge, error) {
	var challenges []*models.VerificationChallenge
	err := r.getDB(ctx).
		Where("account_id = ? AND channel = ?", accountID, channel).
		Order("id DESC").
		Find(&challenges).Error
	if err != nil {
		return nil, NewPersistenceError("list challenges", err)
	}
	return challenges, nil
}

// ExpireActive updates prior pending challenges in place so the partial unique index on
// (account_id, channel) WHERE status = 'pending' keeps holding
func (r *VerificationChallengeRepositoryImpl) ExpireActive(ctx context.Context, accountID uint, channel string) (int64, error) {
	var affected int64
	err := r.write(ctx, "expire active challenges", func(db *gorm.DB) error {
		now := utils.UTCNow()
		res := db.Model(&models.VerificationChallenge{}).
			Where("account_id = ? AND channel = ? AND status = ?", accountID, channel, models.ChallengeStatusPending).
			Updates(map[string]any{
				"status":     models.ChallengeStatusExpired,
				"updated_at": now,
			})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

func (r *VerificationChallengeRepositoryImpl) RecordFailedAttempt(ctx context.Context, id uint) error {
	return r.write(ctx, "record failed attempt", func(db *gorm.DB) error {
		return db.Model(&models.VerificationChallenge{}).
			Where("id = ? AND attempts_count < max_attempts", id).
			Updates(map[string]any{
				"attempts_count": gorm.Expr("attempts_count + 1"),
				"updated_at":     utils.UTCNow(),
			}).Error
	})
}

func (r *VerificationChallengeRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status string, consumedAt *time.Time) error {
	return r.write(ctx, "update challenge status", func(db *gorm.DB) error {
		updates := map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}
		if consumedAt != nil {
			updates["consumed_at"] = *consumedAt
		}
		return db.Model(&models.VerificationChallenge{}).Where("id = ?", id).Updates(updates).Error
	})
}
