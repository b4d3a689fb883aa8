package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/utils"
	"go.uber.org/zap"
)

const deliveryTimeout = 10 * time.Second

// RegistrationFlow handles role-aware onboarding as a single unit of work
type RegistrationFlow interface {
	// RegisterAgent registers an agent under the business of the authenticated caller
	RegisterAgent(ctx context.Context, req *dto.RegisterAgentRequest, callerBusinessID uint, metadata *ClientMetadata) (*dto.RegistrationResponse, error)
	// Register handles public sign-ups of plain users and business owners
	Register(ctx context.Context, req *dto.RegisterRequest, metadata *ClientMetadata) (*dto.RegistrationResponse, error)
	// RegisterAccount runs the unit of work for any role variant
	RegisterAccount(ctx context.Context, credentials models.Credentials, role models.RoleDetails, metadata *ClientMetadata) (*RegistrationResult, error)
}

// RegistrationResult is the post-commit view of a new account
type RegistrationResult struct {
	Account   *models.Account
	Challenge *models.VerificationChallenge
	Verified  bool
}

// RegistrationFlowImpl implements the registration business flow
type RegistrationFlowImpl struct {
	tx       repository.Transactor
	accounts repository.AccountStore
	issuer   VerificationIssuer
	audit    auditor
	logger   *zap.Logger
}

// NewRegistrationFlow creates a new registration flow instance
func NewRegistrationFlow(
	tx repository.Transactor,
	accounts repository.AccountStore,
	issuer VerificationIssuer,
	auditRepo repository.AuditLogRepository,
	logger *zap.Logger,
) RegistrationFlow {
	logger = nopIfNil(logger)
	return &RegistrationFlowImpl{
		tx:       tx,
		accounts: accounts,
		issuer:   issuer,
		audit:    auditor{repo: auditRepo, logger: logger},
		logger:   logger,
	}
}

func (s *RegistrationFlowImpl) RegisterAgent(ctx context.Context, req *dto.RegisterAgentRequest, callerBusinessID uint, metadata *ClientMetadata) (*dto.RegistrationResponse, error) {
	credentials := models.Credentials{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}
	role := models.Agent{
		BusinessID:                      callerBusinessID,
		ContractYearStart:               req.ContractYearStart,
		TotalCommissionThisContractYear: req.TotalCommissionThisContractYear,
	}

	result, err := s.register(ctx, "RegistrationFlow.RegisterAgent", credentials, role, metadata)
	if err != nil {
		return nil, err
	}
	return ToRegistrationResponse(result), nil
}

func (s *RegistrationFlowImpl) Register(ctx context.Context, req *dto.RegisterRequest, metadata *ClientMetadata) (*dto.RegistrationResponse, error) {
	credentials := models.Credentials{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}

	var role models.RoleDetails
	switch req.AccountType {
	case dto.AccountTypeUser:
		role = models.PlainUser{}
	case dto.AccountTypeBusiness:
		role = models.BusinessOwner{Licence: req.Licence, EcarID: req.EcarID}
	default:
		return nil, models.NewValidationError("account_type", fmt.Sprintf("unknown account type %q", req.AccountType))
	}

	result, err := s.register(ctx, "RegistrationFlow.Register", credentials, role, metadata)
	if err != nil {
		return nil, err
	}
	return ToRegistrationResponse(result), nil
}

func (s *RegistrationFlowImpl) RegisterAccount(ctx context.Context, credentials models.Credentials, role models.RoleDetails, metadata *ClientMetadata) (*RegistrationResult, error) {
	return s.register(ctx, "RegistrationFlow.RegisterAccount", credentials, role, metadata)
}

// register creates the account, its business linkage and profile, then issues the email
// challenge, all in one transactional scope. Delivery and the reload happen after commit.
func (s *RegistrationFlowImpl) register(ctx context.Context, op string, credentials models.Credentials, role models.RoleDetails, metadata *ClientMetadata) (*RegistrationResult, error) {
	if role == nil {
		return nil, models.NewValidationError("role", "role is required")
	}
	roleName := models.RoleName(role.RoleID())
	if err := credentials.Validate(); err != nil {
		registrationsTotal.WithLabelValues(roleName, "invalid").Inc()
		return nil, err
	}
	if err := role.Validate(); err != nil {
		registrationsTotal.WithLabelValues(roleName, "invalid").Inc()
		return nil, err
	}

	start := time.Now()
	var account *models.Account
	var challenge *models.VerificationChallenge

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		account, err = s.accounts.CreateAccount(txCtx, credentials, role)
		if err != nil {
			return err
		}

		challenge, err = s.issuer.IssueChallenge(txCtx, account, models.ChannelEmail)
		return err
	})
	registrationDuration.WithLabelValues(roleName).Observe(time.Since(start).Seconds())

	if err != nil {
		registrationsTotal.WithLabelValues(roleName, "failed").Inc()
		s.logFailure(ctx, op, roleName, credentials.Email, err, metadata)

		errMsg := err.Error()
		s.audit.record(ctx, nil, models.AuditActionRegistrationFailed,
			fmt.Sprintf("Registration failed for %s (%s)", utils.MaskEmail(credentials.Email), roleName), false, &errMsg, metadata)
		return nil, err
	}

	registrationsTotal.WithLabelValues(roleName, "succeeded").Inc()
	s.audit.record(ctx, &account.ID, models.AuditActionRegistrationCompleted,
		fmt.Sprintf("Registration completed: %d (%s)", account.ID, roleName), true, nil, metadata)

	s.deliver(ctx, account, challenge, metadata)

	loaded, err := s.accounts.LoadRegistered(ctx, account.ID)
	if err == nil && loaded == nil {
		err = repository.NewPersistenceError("load registered account", ErrAccountNotFound)
	}
	if err != nil {
		s.logFailure(ctx, op, roleName, credentials.Email, err, metadata)
		return nil, err
	}

	return &RegistrationResult{
		Account:   loaded,
		Challenge: challenge,
		Verified:  false,
	}, nil
}

// deliver sends the challenge after commit; a failure is logged and audited, never returned
func (s *RegistrationFlowImpl) deliver(ctx context.Context, account *models.Account, challenge *models.VerificationChallenge, metadata *ClientMetadata) {
	deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := s.issuer.Deliver(deliveryCtx, account, challenge); err != nil {
		errMsg := err.Error()
		s.audit.record(deliveryCtx, &account.ID, models.AuditActionChallengeDeliveryFail,
			fmt.Sprintf("Failed to deliver %s challenge", challenge.Channel), false, &errMsg, metadata)
	}
}

func (s *RegistrationFlowImpl) logFailure(ctx context.Context, op, roleName, email string, err error, metadata *ClientMetadata) {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("role", roleName),
		zap.String("email", utils.MaskEmail(email)),
		zap.Error(err),
	}
	var pe *repository.PersistenceError
	if errors.As(err, &pe) {
		fields = append(fields, zap.String("failed_step", pe.Op))
	}
	if requestID := requestIDFrom(ctx, metadata); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	s.logger.Error("registration failed", fields...)
}
