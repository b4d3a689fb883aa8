package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	testingutil "github.com/amirphl/onboarding/testing"
)

func withPostgres(t *testing.T, fn func(t *testing.T, db *testingutil.TestDB)) {
	t.Helper()
	if !testingutil.Available() {
		t.Skip("TEST_DB_HOST not set")
	}
	err := testingutil.TestWithDB(func(db *testingutil.TestDB) error {
		fn(t, db)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgres_CreateAccountByRole(t *testing.T) {
	withPostgres(t, func(t *testing.T, tdb *testingutil.TestDB) {
		ctx := testingutil.CreateTestContext()
		store := newSQLAccountStore(tdb.DB)
		fixtures := testingutil.NewTestFixtures(tdb)

		t.Run("BusinessOwner", func(t *testing.T) {
			owner, err := store.CreateAccount(ctx, credentials("owner@example.com"),
				models.BusinessOwner{Licence: "LIC-1", EcarID: "ECAR-1"})
			require.NoError(t, err)

			ids, err := repository.NewAccountBusinessRepository(tdb.DB).BusinessIDsByAccount(ctx, owner.ID)
			require.NoError(t, err)
			assert.Len(t, ids, 1)
		})

		t.Run("Agent", func(t *testing.T) {
			business, err := fixtures.CreateTestBusiness()
			require.NoError(t, err)

			agent, err := store.CreateAccount(ctx, credentials("ana@example.com"), models.Agent{
				BusinessID:                      business.ID,
				ContractYearStart:               2024,
				TotalCommissionThisContractYear: decimal.RequireFromString("12.50"),
			})
			require.NoError(t, err)

			loaded, err := store.LoadRegistered(ctx, agent.ID)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			require.NotNil(t, loaded.Profile)
			assert.Equal(t, models.RoleNameAgent, loaded.Role.Name)
			assert.Equal(t, agent.ID, loaded.Profile.AccountID)

			profile, err := repository.NewProfileRepository(tdb.DB).ByAccountID(ctx, agent.ID)
			require.NoError(t, err)
			require.NotNil(t, profile.TotalCommissionThisContractYear)
			assert.True(t, profile.TotalCommissionThisContractYear.Equal(decimal.RequireFromString("12.50")))
		})

		t.Run("AgentOfMissingBusinessRollsBack", func(t *testing.T) {
			before, err := tdb.CountRows("accounts")
			require.NoError(t, err)

			_, err = store.CreateAccount(ctx, credentials("ghost@example.com"), models.Agent{
				BusinessID:        999999,
				ContractYearStart: 2024,
			})
			require.Error(t, err)
			assert.True(t, repository.IsPersistenceError(err))

			after, err := tdb.CountRows("accounts")
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})

		t.Run("DuplicateEmail", func(t *testing.T) {
			_, err := store.CreateAccount(ctx, credentials("OWNER@example.com"), models.PlainUser{})
			require.Error(t, err)
			assert.True(t, repository.IsUniqueViolation(err))
		})
	})
}

func TestPostgres_OnePendingChallengePerChannel(t *testing.T) {
	withPostgres(t, func(t *testing.T, tdb *testingutil.TestDB) {
		ctx := context.Background()
		fixtures := testingutil.NewTestFixtures(tdb)
		repo := repository.NewVerificationChallengeRepository(tdb.DB)

		account, err := fixtures.CreateTestAccount(models.RoleIDPlainUser)
		require.NoError(t, err)

		newChallenge := func(code string) *models.VerificationChallenge {
			return &models.VerificationChallenge{
				CorrelationID: uuid.New(),
				AccountID:     account.ID,
				Channel:       models.ChannelEmail,
				Code:          code,
				TargetValue:   account.Email,
				Status:        models.ChallengeStatusPending,
				MaxAttempts:   3,
				ExpiresAt:     time.Now().UTC().Add(10 * time.Minute),
			}
		}

		require.NoError(t, repo.Save(ctx, newChallenge("123456")))

		err = repo.Save(ctx, newChallenge("654321"))
		require.Error(t, err)
		assert.True(t, repository.IsUniqueViolation(err))

		n, err := repo.ExpireActive(ctx, account.ID, models.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, repo.Save(ctx, newChallenge("654321")))

		active, err := repo.ActiveByAccountAndChannel(ctx, account.ID, models.ChannelEmail)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "654321", active.Code)
	})
}
