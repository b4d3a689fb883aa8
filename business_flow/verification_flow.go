package businessflow

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// VerificationFlow moves an account from Unverified to Verified and re-issues challenges
type VerificationFlow interface {
	Verify(ctx context.Context, req *dto.VerifyEmailRequest, metadata *ClientMetadata) (*dto.VerifyEmailResponse, error)
	Resend(ctx context.Context, req *dto.ResendChallengeRequest, metadata *ClientMetadata) (*dto.ResendChallengeResponse, error)
}

// VerificationFlowImpl implements the verification business flow
type VerificationFlowImpl struct {
	tx            repository.Transactor
	accounts      repository.AccountStore
	challengeRepo repository.VerificationChallengeRepository
	issuer        VerificationIssuer
	audit         auditor
	logger        *zap.Logger

	rc             redis.UniversalClient
	redisPrefix    string
	resendCooldown time.Duration
}

// NewVerificationFlow creates a new verification flow. rc may be nil, which disables the resend cool-down.
func NewVerificationFlow(
	tx repository.Transactor,
	accounts repository.AccountStore,
	challengeRepo repository.VerificationChallengeRepository,
	issuer VerificationIssuer,
	auditRepo repository.AuditLogRepository,
	rc redis.UniversalClient,
	redisPrefix string,
	resendCooldown time.Duration,
	logger *zap.Logger,
) VerificationFlow {
	logger = nopIfNil(logger)
	if resendCooldown <= 0 {
		resendCooldown = utils.VerificationResendCooldown
	}
	return &VerificationFlowImpl{
		tx:             tx,
		accounts:       accounts,
		challengeRepo:  challengeRepo,
		issuer:         issuer,
		audit:          auditor{repo: auditRepo, logger: logger},
		logger:         logger,
		rc:             rc,
		redisPrefix:    redisPrefix,
		resendCooldown: resendCooldown,
	}
}

// Verify consumes the active email challenge. Wrong codes, expiry and exhausted attempts are
// committed before the error is reported so that attempt counting survives.
func (s *VerificationFlowImpl) Verify(ctx context.Context, req *dto.VerifyEmailRequest, metadata *ClientMetadata) (*dto.VerifyEmailResponse, error) {
	account, err := s.findUnverified(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	var outcome error
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		challenge, err := s.challengeRepo.ActiveForUpdate(txCtx, account.ID, models.ChannelEmail)
		if err != nil {
			return err
		}
		if challenge == nil {
			outcome = ErrNoActiveChallenge
			return nil
		}

		if challenge.IsExpired() {
			outcome = ErrChallengeExpired
			return s.challengeRepo.UpdateStatus(txCtx, challenge.ID, models.ChallengeStatusExpired, nil)
		}

		if challenge.AttemptsCount >= challenge.MaxAttempts {
			outcome = ErrTooManyAttempts
			return s.challengeRepo.UpdateStatus(txCtx, challenge.ID, models.ChallengeStatusFailed, nil)
		}

		if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(req.Code)) != 1 {
			outcome = ErrInvalidVerificationCode
			if err := s.challengeRepo.RecordFailedAttempt(txCtx, challenge.ID); err != nil {
				return err
			}
			if challenge.AttemptsCount+1 >= challenge.MaxAttempts {
				return s.challengeRepo.UpdateStatus(txCtx, challenge.ID, models.ChallengeStatusFailed, nil)
			}
			return nil
		}

		now := utils.UTCNow()
		if err := s.challengeRepo.UpdateStatus(txCtx, challenge.ID, models.ChallengeStatusVerified, &now); err != nil {
			return err
		}
		return s.accounts.MarkEmailVerified(txCtx, account.ID, now)
	})
	if err != nil {
		s.logger.Error("verification failed", zap.String("operation", "VerificationFlow.Verify"), zap.Uint("account_id", account.ID), zap.Error(err))
		verificationsTotal.WithLabelValues("error").Inc()
		return nil, NewBusinessError("VERIFICATION_FAILED", "Verification failed", err)
	}

	if outcome != nil {
		verificationsTotal.WithLabelValues("rejected").Inc()
		errMsg := outcome.Error()
		s.audit.record(ctx, &account.ID, models.AuditActionVerificationFailed, "Email verification rejected", false, &errMsg, metadata)
		return nil, NewBusinessError(verificationErrorCode(outcome), "Verification failed", outcome)
	}

	verificationsTotal.WithLabelValues("verified").Inc()
	s.audit.record(ctx, &account.ID, models.AuditActionEmailVerified, fmt.Sprintf("Email verified: %d", account.ID), true, nil, metadata)

	return &dto.VerifyEmailResponse{
		Message:  "Email verified successfully",
		Verified: true,
	}, nil
}

// Resend re-issues a challenge for an unverified account and delivers it best-effort
func (s *VerificationFlowImpl) Resend(ctx context.Context, req *dto.ResendChallengeRequest, metadata *ClientMetadata) (*dto.ResendChallengeResponse, error) {
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelEmail
	}
	if channel != models.ChannelEmail {
		return nil, NewBusinessError("UNSUPPORTED_CHANNEL", "Unsupported channel", ErrUnsupportedChannel)
	}

	account, err := s.findUnverified(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if err := s.claimResendSlot(ctx, account.ID, channel); err != nil {
		return nil, err
	}

	var challenge *models.VerificationChallenge
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		challenge, err = s.issuer.IssueChallenge(txCtx, account, channel)
		return err
	})
	if err != nil {
		s.logger.Error("challenge re-issue failed", zap.String("operation", "VerificationFlow.Resend"), zap.Uint("account_id", account.ID), zap.Error(err))
		return nil, NewBusinessError("RESEND_FAILED", "Failed to issue a new verification code", err)
	}

	s.audit.record(ctx, &account.ID, models.AuditActionChallengeIssued, fmt.Sprintf("Re-issued %s challenge", channel), true, nil, metadata)

	deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	if err := s.issuer.Deliver(deliveryCtx, account, challenge); err != nil {
		errMsg := err.Error()
		s.audit.record(deliveryCtx, &account.ID, models.AuditActionChallengeDeliveryFail,
			fmt.Sprintf("Failed to deliver %s challenge", channel), false, &errMsg, metadata)
	}

	return &dto.ResendChallengeResponse{
		Message:   "A new verification code has been sent",
		Target:    utils.MaskEmail(challenge.TargetValue),
		ExpiresIn: int(time.Until(challenge.ExpiresAt).Seconds()),
	}, nil
}

func (s *VerificationFlowImpl) findUnverified(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("VERIFICATION_FAILED", "Verification failed", err)
	}
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrAccountNotFound)
	}
	if !utils.IsTrue(account.IsActive) {
		return nil, NewBusinessError("ACCOUNT_INACTIVE", "Account is inactive", ErrAccountInactive)
	}
	if account.Verified() {
		return nil, NewBusinessError("ALREADY_VERIFIED", "Account is already verified", ErrAlreadyVerified)
	}
	return account, nil
}

// claimResendSlot rejects bursts with a SET NX key; cache failures let the request through
func (s *VerificationFlowImpl) claimResendSlot(ctx context.Context, accountID uint, channel string) error {
	if s.rc == nil {
		return nil
	}
	key := fmt.Sprintf("resend:%d:%s", accountID, channel)
	if s.redisPrefix != "" {
		key = s.redisPrefix + ":" + key
	}

	ok, err := s.rc.SetNX(ctx, key, "1", s.resendCooldown).Result()
	if err != nil {
		s.logger.Warn("resend cool-down unavailable", zap.Uint("account_id", accountID), zap.Error(err))
		return nil
	}
	if !ok {
		return NewBusinessError("RESEND_TOO_SOON", "Please wait before requesting another code", ErrResendTooSoon)
	}
	return nil
}

func verificationErrorCode(err error) string {
	switch {
	case IsNoActiveChallenge(err):
		return "NO_ACTIVE_CHALLENGE"
	case IsChallengeExpired(err):
		return "CHALLENGE_EXPIRED"
	case IsTooManyAttempts(err):
		return "TOO_MANY_ATTEMPTS"
	case IsInvalidVerificationCode(err):
		return "INVALID_CODE"
	default:
		return "VERIFICATION_FAILED"
	}
}
