package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/models"
)

func registerPlainUser(t *testing.T, f *fixture, email string) *dto.RegistrationResponse {
	t.Helper()
	resp, err := f.flow.Register(context.Background(), &dto.RegisterRequest{
		AccountType: dto.AccountTypeUser,
		FirstName:   "Ana", LastName: "Ruiz", Email: email, Password: "secret123",
	}, nil)
	require.NoError(t, err)
	return resp
}

func (f *fixture) verificationFlow() VerificationFlow {
	return NewVerificationFlow(f.store.Transactor(), f.accounts, f.store.Challenges(), f.issuer, f.store.AuditLogs(), nil, "", 0, nil)
}

func (f *fixture) activeChallenge(t *testing.T, accountID uint) *models.VerificationChallenge {
	t.Helper()
	c, err := f.store.Challenges().ActiveByAccountAndChannel(context.Background(), accountID, models.ChannelEmail)
	require.NoError(t, err)
	return c
}

func businessCode(t *testing.T, err error) string {
	t.Helper()
	var be *BusinessError
	require.True(t, errors.As(err, &be), "expected BusinessError, got %v", err)
	return be.Code
}

func TestVerify_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resp := registerPlainUser(t, f, "ana@x.com")
	challenge := f.activeChallenge(t, resp.Account.ID)
	require.NotNil(t, challenge)

	out, err := f.verificationFlow().Verify(ctx, &dto.VerifyEmailRequest{Email: "ANA@x.com", Code: challenge.Code}, nil)
	require.NoError(t, err)
	assert.True(t, out.Verified)

	account, err := f.accounts.FindAccountByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.True(t, account.Verified())
	assert.NotNil(t, account.EmailVerifiedAt)

	assert.Nil(t, f.activeChallenge(t, resp.Account.ID))

	_, err = f.verificationFlow().Verify(ctx, &dto.VerifyEmailRequest{Email: "ana@x.com", Code: challenge.Code}, nil)
	assert.Equal(t, "ALREADY_VERIFIED", businessCode(t, err))
	assert.True(t, IsAlreadyVerified(err))
}

func TestVerify_WrongCodeCountsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resp := registerPlainUser(t, f, "ana@x.com")
	flow := f.verificationFlow()

	// issued codes are never below 100000
	wrong := &dto.VerifyEmailRequest{Email: "ana@x.com", Code: "000000"}

	_, err := flow.Verify(ctx, wrong, nil)
	assert.Equal(t, "INVALID_CODE", businessCode(t, err))
	challenge := f.activeChallenge(t, resp.Account.ID)
	require.NotNil(t, challenge)
	assert.Equal(t, 1, challenge.AttemptsCount)

	_, err = flow.Verify(ctx, wrong, nil)
	assert.Equal(t, "INVALID_CODE", businessCode(t, err))

	_, err = flow.Verify(ctx, wrong, nil)
	assert.Equal(t, "INVALID_CODE", businessCode(t, err))
	assert.Nil(t, f.activeChallenge(t, resp.Account.ID), "challenge is failed after the last attempt")

	_, err = flow.Verify(ctx, &dto.VerifyEmailRequest{Email: "ana@x.com", Code: challenge.Code}, nil)
	assert.Equal(t, "NO_ACTIVE_CHALLENGE", businessCode(t, err))

	account, err := f.accounts.FindAccountByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.False(t, account.Verified())
}

func TestVerify_ConcurrentWrongCodesRespectLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resp := registerPlainUser(t, f, "ana@x.com")
	flow := f.verificationFlow()

	const guesses = 10
	codes := make(chan string, guesses)
	var wg sync.WaitGroup
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := flow.Verify(ctx, &dto.VerifyEmailRequest{Email: "ana@x.com", Code: "000000"}, nil)
			var be *BusinessError
			if errors.As(err, &be) {
				codes <- be.Code
				return
			}
			codes <- fmt.Sprintf("unexpected: %v", err)
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[string]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, 3, counts["INVALID_CODE"])
	assert.Equal(t, guesses-3, counts["NO_ACTIVE_CHALLENGE"])

	challenges, err := f.store.Challenges().ListByAccountAndChannel(ctx, resp.Account.ID, models.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	assert.Equal(t, 3, challenges[0].AttemptsCount)
	assert.Equal(t, models.ChallengeStatusFailed, challenges[0].Status)
}

func TestVerify_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithProvider(t, nil, IssuerOptions{CodeTTL: time.Millisecond})
	resp := registerPlainUser(t, f, "ana@x.com")
	challenge := f.activeChallenge(t, resp.Account.ID)
	require.NotNil(t, challenge)

	time.Sleep(5 * time.Millisecond)

	_, err := f.verificationFlow().Verify(ctx, &dto.VerifyEmailRequest{Email: "ana@x.com", Code: challenge.Code}, nil)
	assert.Equal(t, "CHALLENGE_EXPIRED", businessCode(t, err))
	assert.True(t, IsChallengeExpired(err))
	assert.Nil(t, f.activeChallenge(t, resp.Account.ID))
}

func TestVerify_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.verificationFlow().Verify(context.Background(), &dto.VerifyEmailRequest{Email: "nobody@x.com", Code: "123456"}, nil)
	assert.Equal(t, "ACCOUNT_NOT_FOUND", businessCode(t, err))
}

func TestResend_ReplacesActiveChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	resp := registerPlainUser(t, f, "ana@x.com")
	first := f.activeChallenge(t, resp.Account.ID)
	require.NotNil(t, first)

	out, err := f.verificationFlow().Resend(ctx, &dto.ResendChallengeRequest{Email: "ana@x.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "an***@x.com", out.Target)
	assert.Positive(t, out.ExpiresIn)

	challenges, err := f.store.Challenges().ListByAccountAndChannel(ctx, resp.Account.ID, models.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, challenges, 2)

	var pending int
	for _, c := range challenges {
		if c.IsPending() {
			pending++
			assert.NotEqual(t, first.ID, c.ID)
		}
	}
	assert.Equal(t, 1, pending)
	assert.Len(t, f.provider.Sent(), 2)

	_, err = f.verificationFlow().Verify(ctx, &dto.VerifyEmailRequest{Email: "ana@x.com", Code: first.Code}, nil)
	require.Error(t, err)
}

func TestResend_UnsupportedChannel(t *testing.T) {
	f := newFixture(t)
	registerPlainUser(t, f, "ana@x.com")

	_, err := f.verificationFlow().Resend(context.Background(), &dto.ResendChallengeRequest{Email: "ana@x.com", Channel: "sms"}, nil)
	assert.Equal(t, "UNSUPPORTED_CHANNEL", businessCode(t, err))
}
