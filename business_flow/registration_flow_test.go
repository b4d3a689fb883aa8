package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/app/services"
	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/repository/memory"
)

type fixture struct {
	store    *memory.Store
	accounts repository.AccountStore
	provider *services.MockEmailProvider
	issuer   VerificationIssuer
	flow     RegistrationFlow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithProvider(t, nil, IssuerOptions{})
}

func newFixtureWithProvider(t *testing.T, provider services.EmailProvider, opts IssuerOptions) *fixture {
	t.Helper()
	store := memory.New()
	accounts := repository.NewAccountStore(
		store.Transactor(),
		store.Accounts(),
		store.Profiles(),
		store.Businesses(),
		store.Attachments(),
		bcrypt.MinCost,
	)

	mock := services.NewMockEmailProvider(nil)
	if provider == nil {
		provider = mock
	}
	issuer := NewVerificationIssuer(store.Challenges(), services.NewNotificationService(provider), opts, nil)

	return &fixture{
		store:    store,
		accounts: accounts,
		provider: mock,
		issuer:   issuer,
		flow:     NewRegistrationFlow(store.Transactor(), accounts, issuer, store.AuditLogs(), nil),
	}
}

// seedBusinessWithID seeds businesses until one with the wanted id exists
func (f *fixture) seedBusinessWithID(id uint) uint {
	var last uint
	for last < id {
		last = f.store.SeedBusiness("LIC", fmt.Sprintf("ECAR-%d", last+1))
	}
	return last
}

func agentRequest(email string) *dto.RegisterAgentRequest {
	return &dto.RegisterAgentRequest{
		FirstName:                       "Ana",
		LastName:                        "Ruiz",
		Email:                           email,
		Password:                        "secret123",
		ContractYearStart:               2024,
		TotalCommissionThisContractYear: decimal.Zero,
	}
}

func TestRegisterAgent_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	businessID := f.seedBusinessWithID(7)
	require.Equal(t, uint(7), businessID)

	resp, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	assert.False(t, resp.Verified)
	assert.Equal(t, models.RoleNameAgent, resp.Account.Role.Name)
	assert.Equal(t, "ana", resp.Account.Handle)
	assert.Equal(t, "ana@x.com", resp.Account.Email)
	require.NotNil(t, resp.Account.Profile)
	assert.Equal(t, resp.Account.ID, resp.Account.Profile.UserID)
	assert.Nil(t, resp.Account.Profile.Phone)
	assert.Nil(t, resp.Account.Profile.Bio)

	ids, err := f.store.Attachments().BusinessIDsByAccount(ctx, resp.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{7}, ids)

	profile, err := f.store.Profiles().ByAccountID(ctx, resp.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.ContractYearStart)
	require.NotNil(t, profile.TotalCommissionThisContractYear)
	assert.Equal(t, 2024, *profile.ContractYearStart)
	assert.True(t, profile.TotalCommissionThisContractYear.IsZero())

	challenges, err := f.store.Challenges().ListByAccountAndChannel(ctx, resp.Account.ID, models.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	assert.True(t, challenges[0].IsActive())

	sent := f.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@x.com", sent[0].To)
	assert.Contains(t, sent[0].Body, challenges[0].Code)

	logs, err := f.store.AuditLogs().ListByAccount(ctx, resp.Account.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionRegistrationCompleted, logs[0].Action)
}

func TestRegister_Atomicity(t *testing.T) {
	steps := []string{
		"create accounts",
		"create account_businesses",
		"create profiles",
		"expire active challenges",
		"create verification_challenges",
	}

	for _, step := range steps {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			businessID := f.store.SeedBusiness("LIC", "ECAR")
			f.store.FailOn(step, errors.New("connection reset by peer"))

			_, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
			require.Error(t, err)
			assert.True(t, repository.IsTransactionAborted(err))

			var pe *repository.PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, step, pe.Op)

			counts := f.store.Counts()
			assert.Zero(t, counts["accounts"])
			assert.Zero(t, counts["account_businesses"])
			assert.Zero(t, counts["profiles"])
			assert.Zero(t, counts["verification_challenges"])
			assert.Equal(t, 1, counts["businesses"])
			assert.Equal(t, 1, counts["audit_logs"], "failure audit is written outside the transaction")
			assert.Empty(t, f.provider.Sent())
		})
	}
}

type panickingIssuer struct{ VerificationIssuer }

func (panickingIssuer) IssueChallenge(context.Context, *models.Account, string) (*models.VerificationChallenge, error) {
	panic("issuer exploded")
}

func TestRegister_PanicRollsBack(t *testing.T) {
	f := newFixture(t)
	flow := NewRegistrationFlow(f.store.Transactor(), f.accounts, panickingIssuer{}, f.store.AuditLogs(), nil)

	_, err := flow.RegisterAccount(context.Background(), models.Credentials{
		FirstName: "Ana", LastName: "Ruiz", Email: "ana@x.com", Password: "secret123",
	}, models.PlainUser{}, nil)
	require.Error(t, err)
	assert.True(t, repository.IsTransactionAborted(err))
	assert.Zero(t, f.store.Counts()["accounts"])
	assert.Zero(t, f.store.Counts()["profiles"])
}

func TestRegister_Uniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	businessID := f.store.SeedBusiness("LIC", "ECAR")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, repository.IsPersistenceError(err))
			assert.True(t, repository.IsUniqueViolation(err))
		}
	}
	assert.Equal(t, 1, failures)

	counts := f.store.Counts()
	assert.Equal(t, 1, counts["accounts"])
	assert.Equal(t, 1, counts["profiles"])
	assert.Equal(t, 1, counts["account_businesses"])
	assert.Equal(t, 1, counts["verification_challenges"])
}

func TestRegister_HandleDisambiguation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	businessID := f.store.SeedBusiness("LIC", "ECAR")

	first, err := f.flow.RegisterAgent(ctx, agentRequest("ana1@x.com"), businessID, nil)
	require.NoError(t, err)
	second, err := f.flow.RegisterAgent(ctx, agentRequest("ana2@x.com"), businessID, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Account.Handle, second.Account.Handle)
}

func TestRegister_RoleBranching(t *testing.T) {
	ctx := context.Background()

	t.Run("business owner creates exactly one business", func(t *testing.T) {
		f := newFixture(t)
		resp, err := f.flow.Register(ctx, &dto.RegisterRequest{
			AccountType: dto.AccountTypeBusiness,
			FirstName:   "Ben", LastName: "Owner", Email: "ben@x.com", Password: "secret123",
			Licence: "LIC-9", EcarID: "ECAR-9",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, models.RoleNameBusinessOwner, resp.Account.Role.Name)

		ids, err := f.store.Attachments().BusinessIDsByAccount(ctx, resp.Account.ID)
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Equal(t, 1, f.store.Counts()["businesses"])

		profile, err := f.store.Profiles().ByAccountID(ctx, resp.Account.ID)
		require.NoError(t, err)
		assert.False(t, profile.HasContract())
	})

	t.Run("agent creates no business", func(t *testing.T) {
		f := newFixture(t)
		businessID := f.store.SeedBusiness("LIC", "ECAR")

		_, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.Counts()["businesses"])

		n, err := f.store.Attachments().CountByBusiness(ctx, businessID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("several agents share one business", func(t *testing.T) {
		f := newFixture(t)
		businessID := f.store.SeedBusiness("LIC", "ECAR")

		for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
			_, err := f.flow.RegisterAgent(ctx, agentRequest(email), businessID, nil)
			require.NoError(t, err)
		}
		n, err := f.store.Attachments().CountByBusiness(ctx, businessID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("plain user has no business and no attachment", func(t *testing.T) {
		f := newFixture(t)
		resp, err := f.flow.Register(ctx, &dto.RegisterRequest{
			AccountType: dto.AccountTypeUser,
			FirstName:   "Cy", LastName: "User", Email: "cy@x.com", Password: "secret123",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, models.RoleNamePlainUser, resp.Account.Role.Name)

		counts := f.store.Counts()
		assert.Zero(t, counts["businesses"])
		assert.Zero(t, counts["account_businesses"])

		profile, err := f.store.Profiles().ByAccountID(ctx, resp.Account.ID)
		require.NoError(t, err)
		assert.False(t, profile.HasContract())
	})
}

func TestRegister_ValidationNeverOpensTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), 0, nil)
	assert.True(t, models.IsValidationError(err))

	_, err = f.flow.Register(ctx, &dto.RegisterRequest{
		AccountType: dto.AccountTypeBusiness,
		FirstName:   "Ben", LastName: "Owner", Email: "ben@x.com", Password: "secret123",
	}, nil)
	assert.True(t, models.IsValidationError(err))

	_, err = f.flow.Register(ctx, &dto.RegisterRequest{AccountType: "admin"}, nil)
	assert.True(t, models.IsValidationError(err))

	assert.Zero(t, f.store.Counts()["accounts"])
	assert.Zero(t, f.store.Counts()["audit_logs"])
}

func TestRegister_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	businessID := f.store.SeedBusiness("LIC", "ECAR")

	f.store.FailOn("create verification_challenges", errors.New("timeout"))
	_, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
	require.Error(t, err)

	f.store.ClearFailures()
	resp, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
	require.NoError(t, err)
	assert.False(t, resp.Verified)
	assert.Equal(t, "ana", resp.Account.Handle)

	_, err = f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
	assert.True(t, repository.IsUniqueViolation(err))

	counts := f.store.Counts()
	assert.Equal(t, 1, counts["accounts"])
	assert.Equal(t, 1, counts["profiles"])
	assert.Equal(t, 1, counts["account_businesses"])
	assert.Equal(t, 1, counts["verification_challenges"])
}

type failingEmailProvider struct{}

func (failingEmailProvider) SendEmail(context.Context, string, string, string) error {
	return errors.New("smtp unavailable")
}

func TestRegister_DeliveryFailureKeepsRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithProvider(t, failingEmailProvider{}, IssuerOptions{})
	businessID := f.store.SeedBusiness("LIC", "ECAR")

	resp, err := f.flow.RegisterAgent(ctx, agentRequest("ana@x.com"), businessID, nil)
	require.NoError(t, err)

	challenge, err := f.store.Challenges().ActiveByAccountAndChannel(ctx, resp.Account.ID, models.ChannelEmail)
	require.NoError(t, err)
	assert.NotNil(t, challenge)

	logs, err := f.store.AuditLogs().ListByAccount(ctx, resp.Account.ID, 10, 0)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, models.AuditActionChallengeDeliveryFail)
}
