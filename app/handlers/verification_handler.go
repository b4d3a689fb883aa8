package handlers

import (
	"errors"

	"github.com/amirphl/onboarding/app/dto"
	businessflow "github.com/amirphl/onboarding/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// VerificationHandler handles verification code consumption and re-issuance
type VerificationHandler struct {
	verificationFlow businessflow.VerificationFlow
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(verificationFlow businessflow.VerificationFlow, logger *zap.Logger) *VerificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationHandler{
		verificationFlow: verificationFlow,
		validator:        validator.New(),
		logger:           logger,
	}
}

// Verify consumes an email verification code
// @Summary Verify Email
// @Description Verify the email address of a newly registered account
// @Tags Verification
// @Accept json
// @Produce json
// @Param request body dto.VerifyEmailRequest true "Verification data"
// @Success 200 {object} dto.APIResponse{data=dto.VerifyEmailResponse} "Email verified"
// @Failure 400 {object} dto.APIResponse "Invalid, expired or missing code"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Failure 409 {object} dto.APIResponse "Already verified"
// @Failure 429 {object} dto.APIResponse "Too many attempts"
// @Failure 500 {object} dto.APIResponse "Server Error"
// @Router /api/v1/auth/verify [post]
func (h *VerificationHandler) Verify(c fiber.Ctx) error {
	var req dto.VerifyEmailRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.verificationFlow.Verify(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.verificationError(c, err)
	}

	return SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// Resend issues a fresh verification code
// @Summary Resend Verification Code
// @Description Expire the active verification code and send a new one
// @Tags Verification
// @Accept json
// @Produce json
// @Param request body dto.ResendChallengeRequest true "Resend data"
// @Success 200 {object} dto.APIResponse{data=dto.ResendChallengeResponse} "Code sent"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Failure 409 {object} dto.APIResponse "Already verified"
// @Failure 429 {object} dto.APIResponse "Requested too soon"
// @Failure 500 {object} dto.APIResponse "Server Error"
// @Router /api/v1/auth/resend [post]
func (h *VerificationHandler) Resend(c fiber.Ctx) error {
	var req dto.ResendChallengeRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.verificationFlow.Resend(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.verificationError(c, err)
	}

	return SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

func (h *VerificationHandler) verificationError(c fiber.Ctx, err error) error {
	var be *businessflow.BusinessError
	if !errors.As(err, &be) {
		h.logger.Error("unexpected verification error", zap.Error(err))
		return ErrorResponse(c, fiber.StatusInternalServerError, "Server Error", "VERIFICATION_FAILED", nil)
	}

	switch be.Code {
	case "ACCOUNT_NOT_FOUND":
		return ErrorResponse(c, fiber.StatusNotFound, be.Message, be.Code, nil)
	case "ALREADY_VERIFIED":
		return ErrorResponse(c, fiber.StatusConflict, be.Message, be.Code, nil)
	case "TOO_MANY_ATTEMPTS", "RESEND_TOO_SOON":
		return ErrorResponse(c, fiber.StatusTooManyRequests, be.Message, be.Code, nil)
	case "ACCOUNT_INACTIVE", "NO_ACTIVE_CHALLENGE", "CHALLENGE_EXPIRED", "INVALID_CODE", "UNSUPPORTED_CHANNEL":
		return ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
	default:
		return ErrorResponse(c, fiber.StatusInternalServerError, "Server Error", be.Code, nil)
	}
}
