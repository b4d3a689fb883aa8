package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountStoreImpl implements AccountStore on top of the entity repositories
type AccountStoreImpl struct {
	tx             Transactor
	accountRepo    AccountRepository
	profileRepo    ProfileRepository
	businessRepo   BusinessRepository
	attachmentRepo AccountBusinessRepository
	bcryptCost     int
}

// NewAccountStore creates a new account store
func NewAccountStore(
	tx Transactor,
	accountRepo AccountRepository,
	profileRepo ProfileRepository,
	businessRepo BusinessRepository,
	attachmentRepo AccountBusinessRepository,
	bcryptCost int,
) AccountStore {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AccountStoreImpl{
		tx:             tx,
		accountRepo:    accountRepo,
		profileRepo:    profileRepo,
		businessRepo:   businessRepo,
		attachmentRepo: attachmentRepo,
		bcryptCost:     bcryptCost,
	}
}

// CreateAccount creates the account and, depending on the role, its business linkage and profile.
// Everything happens inside one transactional scope; when ctx already carries one, it is joined.
func (s *AccountStoreImpl) CreateAccount(ctx context.Context, credentials models.Credentials, role models.RoleDetails) (*models.Account, error) {
	if role == nil {
		return nil, models.NewValidationError("role", "role is required")
	}
	if err := credentials.Validate(); err != nil {
		return nil, err
	}
	if err := role.Validate(); err != nil {
		return nil, err
	}

	var account *models.Account
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		handle, err := s.uniqueHandle(txCtx, credentials.FirstName)
		if err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(credentials.Password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		account = &models.Account{
			UUID:            uuid.New(),
			Handle:          handle,
			FirstName:       strings.TrimSpace(credentials.FirstName),
			LastName:        strings.TrimSpace(credentials.LastName),
			Email:           NormalizeEmail(credentials.Email),
			PasswordHash:    string(hash),
			RoleID:          role.RoleID(),
			IsEmailVerified: utils.ToPtr(false),
			IsActive:        utils.ToPtr(true),
		}
		if err := s.accountRepo.Save(txCtx, account); err != nil {
			return err
		}

		switch r := role.(type) {
		case models.PlainUser:
			return s.createProfile(txCtx, &models.Profile{AccountID: account.ID})

		case models.BusinessOwner:
			business := &models.Business{Licence: r.Licence, EcarID: r.EcarID}
			if err := s.businessRepo.Save(txCtx, business); err != nil {
				return err
			}
			if err := s.createProfile(txCtx, &models.Profile{AccountID: account.ID}); err != nil {
				return err
			}
			return s.attach(txCtx, account.ID, business.ID)

		case models.Agent:
			if err := s.attach(txCtx, account.ID, r.BusinessID); err != nil {
				return err
			}
			commission := r.TotalCommissionThisContractYear
			return s.createProfile(txCtx, &models.Profile{
				AccountID:                       account.ID,
				ContractYearStart:               utils.ToPtr(r.ContractYearStart),
				TotalCommissionThisContractYear: &commission,
			})

		default:
			return models.NewValidationError("role", fmt.Sprintf("unsupported role %T", role))
		}
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

func (s *AccountStoreImpl) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.accountRepo.ByEmail(ctx, NormalizeEmail(email))
}

func (s *AccountStoreImpl) LoadRegistered(ctx context.Context, accountID uint) (*models.Account, error) {
	return s.accountRepo.RegistrationView(ctx, accountID)
}

func (s *AccountStoreImpl) MarkEmailVerified(ctx context.Context, accountID uint, at time.Time) error {
	return s.accountRepo.MarkEmailVerified(ctx, accountID, at)
}

func (s *AccountStoreImpl) uniqueHandle(ctx context.Context, firstName string) (string, error) {
	base := utils.Slugify(firstName)
	taken, err := s.accountRepo.HandlesWithBase(ctx, base)
	if err != nil {
		return "", err
	}
	return utils.NextHandle(base, taken), nil
}

func (s *AccountStoreImpl) createProfile(ctx context.Context, profile *models.Profile) error {
	return s.profileRepo.Save(ctx, profile)
}

func (s *AccountStoreImpl) attach(ctx context.Context, accountID, businessID uint) error {
	return s.attachmentRepo.Save(ctx, &models.AccountBusiness{AccountID: accountID, BusinessID: businessID})
}

// NormalizeEmail lowercases and trims an address so lookups and the unique index agree
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
