// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/app/services"
	businessflow "github.com/amirphl/onboarding/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locals keys set by the middleware chain
const (
	LocalAccountID        = "account_id"
	LocalTokenID          = "token_id"
	LocalRequestID        = "request_id"
	LocalCallerBusinessID = "caller_business_id"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
	resolver     businessflow.CallerBusinessResolver
	logger       *zap.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService, resolver businessflow.CallerBusinessResolver, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		tokenService: tokenService,
		resolver:     resolver,
		logger:       logger,
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// Authenticate is the middleware function that validates JWT access tokens
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokenService.ValidateToken(c.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}
		if claims.TokenType != services.TokenTypeAccess {
			return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
		}

		c.Locals(LocalAccountID, claims.AccountID)
		c.Locals(LocalTokenID, claims.TokenID)

		return c.Next()
	}
}

// CallerBusiness resolves the business the authenticated account acts for. It must run after Authenticate.
func (m *AuthMiddleware) CallerBusiness() fiber.Handler {
	return func(c fiber.Ctx) error {
		accountID, ok := GetAccountIDFromContext(c)
		if !ok || accountID == 0 {
			return unauthorized(c, "Authentication required", "AUTHENTICATION_REQUIRED")
		}

		businessID, err := m.resolver.Resolve(c.Context(), accountID)
		if err != nil {
			if businessflow.IsCallerHasNoBusiness(err) {
				return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
					Success: false,
					Message: "Caller is not attached to any business",
					Error:   dto.ErrorDetail{Code: "CALLER_HAS_NO_BUSINESS"},
				})
			}

			m.logger.Error("caller business resolution failed", zap.Uint("account_id", accountID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
				Success: false,
				Message: "Server Error",
				Error:   dto.ErrorDetail{Code: "CALLER_BUSINESS_LOOKUP_FAILED"},
			})
		}

		c.Locals(LocalCallerBusinessID, businessID)
		return c.Next()
	}
}

// RequestID propagates X-Request-ID, generating one when the client did not send it
func RequestID() fiber.Handler {
	return func(c fiber.Ctx) error {
		requestID := c.Get(businessflow.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(LocalRequestID, requestID)
		c.Set(businessflow.RequestIDHeader, requestID)
		return c.Next()
	}
}

// GetAccountIDFromContext extracts the account ID from the request context
func GetAccountIDFromContext(c fiber.Ctx) (uint, bool) {
	accountID, ok := c.Locals(LocalAccountID).(uint)
	return accountID, ok
}

// GetCallerBusinessIDFromContext extracts the caller business ID set by CallerBusiness
func GetCallerBusinessIDFromContext(c fiber.Ctx) (uint, bool) {
	businessID, ok := c.Locals(LocalCallerBusinessID).(uint)
	return businessID, ok && businessID != 0
}

// GetRequestIDFromContext extracts the request ID set by RequestID
func GetRequestIDFromContext(c fiber.Ctx) string {
	requestID, _ := c.Locals(LocalRequestID).(string)
	return requestID
}
