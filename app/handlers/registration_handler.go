package handlers

import (
	"errors"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/app/middleware"
	businessflow "github.com/amirphl/onboarding/business_flow"
	"github.com/amirphl/onboarding/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// RegistrationHandlerInterface defines the contract for registration handlers
type RegistrationHandlerInterface interface {
	RegisterAgent(c fiber.Ctx) error
	Register(c fiber.Ctx) error
}

// RegistrationHandler handles account registration requests
type RegistrationHandler struct {
	registrationFlow businessflow.RegistrationFlow
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrationFlow businessflow.RegistrationFlow, logger *zap.Logger) *RegistrationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationHandler{
		registrationFlow: registrationFlow,
		validator:        validator.New(),
		logger:           logger,
	}
}

// RegisterAgent registers an agent under the caller's business
// @Summary Register Agent
// @Description Create an agent account attached to the business of the authenticated caller. The new account starts unverified and an email verification code is sent.
// @Tags Registration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.RegisterAgentRequest true "Agent registration data"
// @Success 201 {object} dto.APIResponse{data=dto.RegistrationResponse} "Registration Successful"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Caller has no business"
// @Failure 500 {object} dto.APIResponse "Server Error"
// @Router /api/v1/agents/register [post]
func (h *RegistrationHandler) RegisterAgent(c fiber.Ctx) error {
	businessID, ok := middleware.GetCallerBusinessIDFromContext(c)
	if !ok {
		return ErrorResponse(c, fiber.StatusForbidden, "Caller is not attached to any business", "CALLER_HAS_NO_BUSINESS", nil)
	}

	var req dto.RegisterAgentRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.registrationFlow.RegisterAgent(ctx, &req, businessID, clientMetadata(c))
	if err != nil {
		return h.registrationError(c, err)
	}

	return SuccessResponse(c, fiber.StatusCreated, "Registration Successful", result)
}

// Register handles public registration of plain users and business owners
// @Summary Register
// @Description Create a plain user or business owner account. Business owners must provide licence and ecar_id.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration data"
// @Success 201 {object} dto.APIResponse{data=dto.RegistrationResponse} "Registration Successful"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Server Error"
// @Router /api/v1/auth/register [post]
func (h *RegistrationHandler) Register(c fiber.Ctx) error {
	var req dto.RegisterRequest
	if ok, err := bindAndValidate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.registrationFlow.Register(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.registrationError(c, err)
	}

	return SuccessResponse(c, fiber.StatusCreated, "Registration Successful", result)
}

func (h *RegistrationHandler) registrationError(c fiber.Ctx, err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", []string{ve.Error()})
	}

	// The workflow already logged the failure with its context
	return ErrorResponse(c, fiber.StatusInternalServerError, "Server Error", "REGISTRATION_FAILED", err.Error())
}
