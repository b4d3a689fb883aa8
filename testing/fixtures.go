package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestBusiness inserts a business with a random ECAR id
func (tf *TestFixtures) CreateTestBusiness() (*models.Business, error) {
	business := &models.Business{
		Licence: fmt.Sprintf("LIC-%06d", rand.Intn(1000000)),
		EcarID:  fmt.Sprintf("ECAR-%09d", rand.Intn(1000000000)),
	}
	if err := tf.DB.DB.Create(business).Error; err != nil {
		return nil, fmt.Errorf("failed to create test business: %w", err)
	}
	return business, nil
}

// CreateTestAccount inserts an unverified account with the given role, bypassing registration
func (tf *TestFixtures) CreateTestAccount(roleID uint) (*models.Account, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	suffix := rand.Intn(900000000) + 100000000
	account := &models.Account{
		UUID:            uuid.New(),
		Handle:          fmt.Sprintf("john-%d", suffix),
		FirstName:       "John",
		LastName:        "Doe",
		Email:           fmt.Sprintf("john.doe.%d@example.com", suffix),
		PasswordHash:    string(hashedPassword),
		RoleID:          roleID,
		IsEmailVerified: utils.ToPtr(false),
		IsActive:        utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create test account: %w", err)
	}
	return account, nil
}

// AttachToBusiness links an account to a business
func (tf *TestFixtures) AttachToBusiness(accountID, businessID uint) error {
	return tf.DB.DB.Create(&models.AccountBusiness{AccountID: accountID, BusinessID: businessID}).Error
}

// CreateTestAuditLog creates a test audit log entry
func (tf *TestFixtures) CreateTestAuditLog(accountID *uint, action string, success bool) (*models.AuditLog, error) {
	description := fmt.Sprintf("Test audit log for action: %s", action)
	auditLog := &models.AuditLog{
		AccountID:   accountID,
		Action:      action,
		Description: &description,
		Success:     utils.ToPtr(success),
		IPAddress:   utils.ToPtr("127.0.0.1"),
		UserAgent:   utils.ToPtr("Test User Agent"),
	}
	if !success {
		auditLog.ErrorMessage = utils.ToPtr("Test error message")
	}

	if err := tf.DB.DB.Create(auditLog).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}
	return auditLog, nil
}
