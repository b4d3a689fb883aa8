package businessflow

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/amirphl/onboarding/app/services"
	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerificationIssuer creates one-time verification challenges and hands them to delivery
type VerificationIssuer interface {
	// IssueChallenge expires any active challenge for (account, channel) and stores a new one.
	// It joins the transactional scope carried by ctx, if any.
	IssueChallenge(ctx context.Context, account *models.Account, channel string) (*models.VerificationChallenge, error)
	// Deliver sends the code out of band. Callers treat failures as best-effort.
	Deliver(ctx context.Context, account *models.Account, challenge *models.VerificationChallenge) error
}

// IssuerOptions tune challenge lifetime
type IssuerOptions struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

// VerificationIssuerImpl implements VerificationIssuer
type VerificationIssuerImpl struct {
	challengeRepo   repository.VerificationChallengeRepository
	notificationSvc services.NotificationService
	opts            IssuerOptions
	logger          *zap.Logger
}

// NewVerificationIssuer creates a new verification issuer
func NewVerificationIssuer(
	challengeRepo repository.VerificationChallengeRepository,
	notificationSvc services.NotificationService,
	opts IssuerOptions,
	logger *zap.Logger,
) VerificationIssuer {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = utils.VerificationCodeExpiry
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = utils.VerificationMaxAttempts
	}
	return &VerificationIssuerImpl{
		challengeRepo:   challengeRepo,
		notificationSvc: notificationSvc,
		opts:            opts,
		logger:          nopIfNil(logger),
	}
}

func (v *VerificationIssuerImpl) IssueChallenge(ctx context.Context, account *models.Account, channel string) (*models.VerificationChallenge, error) {
	target, err := channelTarget(account, channel)
	if err != nil {
		return nil, err
	}

	code, err := GenerateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	if _, err := v.challengeRepo.ExpireActive(ctx, account.ID, channel); err != nil {
		return nil, err
	}

	challenge := &models.VerificationChallenge{
		CorrelationID: uuid.New(),
		AccountID:     account.ID,
		Channel:       channel,
		Code:          code,
		TargetValue:   target,
		Status:        models.ChallengeStatusPending,
		MaxAttempts:   v.opts.MaxAttempts,
		ExpiresAt:     utils.UTCNowAdd(v.opts.CodeTTL),
	}
	if err := v.challengeRepo.Save(ctx, challenge); err != nil {
		return nil, err
	}

	challengesIssuedTotal.WithLabelValues(channel).Inc()
	return challenge, nil
}

func (v *VerificationIssuerImpl) Deliver(ctx context.Context, account *models.Account, challenge *models.VerificationChallenge) error {
	if v.notificationSvc == nil {
		return fmt.Errorf("notification service not configured")
	}

	var err error
	switch challenge.Channel {
	case models.ChannelEmail:
		body := fmt.Sprintf("Hi %s,\n\nYour verification code is: %s\nIt expires in %d minutes.",
			account.FirstName, challenge.Code, int(v.opts.CodeTTL.Minutes()))
		err = v.notificationSvc.SendEmail(ctx, challenge.TargetValue, "Verify your email address", body)
	default:
		err = ErrUnsupportedChannel
	}

	if err != nil {
		challengeDeliveryFailuresTotal.WithLabelValues(challenge.Channel).Inc()
		v.logger.Warn("verification delivery failed",
			zap.Uint("account_id", account.ID),
			zap.String("channel", challenge.Channel),
			zap.String("target", utils.MaskEmail(challenge.TargetValue)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func channelTarget(account *models.Account, channel string) (string, error) {
	switch channel {
	case models.ChannelEmail:
		return account.Email, nil
	default:
		return "", ErrUnsupportedChannel
	}
}

// GenerateVerificationCode returns a uniformly random six digit code
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(utils.VerificationCodeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+utils.VerificationCodeMin), nil
}
