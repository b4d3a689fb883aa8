package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/repository/memory"
)

func newMemoryAccountStore(t *testing.T) (*memory.Store, repository.AccountStore) {
	t.Helper()
	store := memory.New()
	accountStore := repository.NewAccountStore(
		store.Transactor(),
		store.Accounts(),
		store.Profiles(),
		store.Businesses(),
		store.Attachments(),
		bcrypt.MinCost,
	)
	return store, accountStore
}

func credentials(email string) models.Credentials {
	return models.Credentials{FirstName: "Ana", LastName: "Ruiz", Email: email, Password: "secret123"}
}

func TestAccountStore_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("plain user gets an empty profile and no business", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)

		account, err := accounts.CreateAccount(ctx, credentials("ana@x.com"), models.PlainUser{})
		require.NoError(t, err)

		assert.NotZero(t, account.ID)
		assert.Equal(t, "ana", account.Handle)
		assert.Equal(t, models.RoleIDPlainUser, account.RoleID)
		assert.NotEqual(t, "secret123", account.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("secret123")))

		profile, err := store.Profiles().ByAccountID(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.False(t, profile.HasContract())

		counts := store.Counts()
		assert.Equal(t, 0, counts["businesses"])
		assert.Equal(t, 0, counts["account_businesses"])
	})

	t.Run("business owner creates and joins a new business", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)

		account, err := accounts.CreateAccount(ctx, credentials("owner@x.com"), models.BusinessOwner{Licence: "LIC-1", EcarID: "ECAR-1"})
		require.NoError(t, err)

		ids, err := store.Attachments().BusinessIDsByAccount(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, ids, 1)

		business, err := store.Businesses().ByID(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "LIC-1", business.Licence)
		assert.Equal(t, "ECAR-1", business.EcarID)
		assert.Equal(t, 1, store.Counts()["businesses"])

		profile, err := store.Profiles().ByAccountID(ctx, account.ID)
		require.NoError(t, err)
		assert.False(t, profile.HasContract())
	})

	t.Run("agent joins the existing business with contract metadata", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)
		businessID := store.SeedBusiness("LIC-7", "ECAR-7")

		account, err := accounts.CreateAccount(ctx, credentials("agent@x.com"), models.Agent{
			BusinessID:                      businessID,
			ContractYearStart:               2024,
			TotalCommissionThisContractYear: decimal.RequireFromString("12.50"),
		})
		require.NoError(t, err)

		ids, err := store.Attachments().BusinessIDsByAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{businessID}, ids)
		assert.Equal(t, 1, store.Counts()["businesses"])

		profile, err := store.Profiles().ByAccountID(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, profile.ContractYearStart)
		assert.Equal(t, 2024, *profile.ContractYearStart)
		assert.True(t, decimal.RequireFromString("12.5").Equal(*profile.TotalCommissionThisContractYear))
	})

	t.Run("same first name yields distinct handles", func(t *testing.T) {
		_, accounts := newMemoryAccountStore(t)

		first, err := accounts.CreateAccount(ctx, credentials("a1@x.com"), models.PlainUser{})
		require.NoError(t, err)
		second, err := accounts.CreateAccount(ctx, credentials("a2@x.com"), models.PlainUser{})
		require.NoError(t, err)
		third, err := accounts.CreateAccount(ctx, credentials("a3@x.com"), models.PlainUser{})
		require.NoError(t, err)

		assert.Equal(t, "ana", first.Handle)
		assert.Equal(t, "ana-1", second.Handle)
		assert.Equal(t, "ana-2", third.Handle)
	})

	t.Run("duplicate email is a persistence error and leaves nothing behind", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)

		_, err := accounts.CreateAccount(ctx, credentials("ana@x.com"), models.PlainUser{})
		require.NoError(t, err)
		before := store.Counts()

		_, err = accounts.CreateAccount(ctx, credentials("ANA@x.com "), models.BusinessOwner{Licence: "L", EcarID: "E"})
		require.Error(t, err)
		assert.True(t, repository.IsPersistenceError(err))
		assert.True(t, repository.IsUniqueViolation(err))
		assert.True(t, repository.IsTransactionAborted(err))
		assert.Equal(t, before, store.Counts())
	})

	t.Run("failing profile insert rolls back account and business", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)
		store.FailOn("create profiles", errors.New("connection reset"))

		_, err := accounts.CreateAccount(ctx, credentials("owner@x.com"), models.BusinessOwner{Licence: "L", EcarID: "E"})
		require.Error(t, err)

		var pe *repository.PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "create profiles", pe.Op)

		counts := store.Counts()
		assert.Zero(t, counts["accounts"])
		assert.Zero(t, counts["businesses"])
		assert.Zero(t, counts["profiles"])
	})

	t.Run("agent with unknown business fails atomically", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)

		_, err := accounts.CreateAccount(ctx, credentials("agent@x.com"), models.Agent{BusinessID: 99, ContractYearStart: 2024})
		require.Error(t, err)
		assert.True(t, repository.IsPersistenceError(err))
		assert.Zero(t, store.Counts()["accounts"])
	})

	t.Run("invalid variant never reaches storage", func(t *testing.T) {
		store, accounts := newMemoryAccountStore(t)

		_, err := accounts.CreateAccount(ctx, credentials("agent@x.com"), models.Agent{ContractYearStart: 2024})
		assert.True(t, models.IsValidationError(err))

		_, err = accounts.CreateAccount(ctx, credentials("x@x.com"), nil)
		assert.True(t, models.IsValidationError(err))
		assert.Zero(t, store.Counts()["accounts"])
	})
}

func TestAccountStore_FindAccountByEmail(t *testing.T) {
	ctx := context.Background()
	_, accounts := newMemoryAccountStore(t)

	created, err := accounts.CreateAccount(ctx, credentials("ana@x.com"), models.PlainUser{})
	require.NoError(t, err)

	found, err := accounts.FindAccountByEmail(ctx, "Ana@X.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := accounts.FindAccountByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAccountStore_LoadRegistered(t *testing.T) {
	ctx := context.Background()
	store, accounts := newMemoryAccountStore(t)
	businessID := store.SeedBusiness("LIC", "ECAR")

	created, err := accounts.CreateAccount(ctx, credentials("agent@x.com"), models.Agent{BusinessID: businessID, ContractYearStart: 2024})
	require.NoError(t, err)

	loaded, err := accounts.LoadRegistered(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Profile)
	assert.Equal(t, models.RoleNameAgent, loaded.Role.Name)
	assert.Equal(t, created.ID, loaded.Profile.AccountID)
	assert.Nil(t, loaded.Profile.ContractYearStart)
	assert.Nil(t, loaded.Profile.Phone)
}
