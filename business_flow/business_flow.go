// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
	"github.com/amirphl/onboarding/utils"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

type contextKey string

// RequestIDKey carries the request id through the business context
const RequestIDKey contextKey = "request_id"

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// ToAccountDTO converts a loaded account to its API representation
func ToAccountDTO(account models.Account) dto.AccountDTO {
	out := dto.AccountDTO{
		ID:              account.ID,
		UUID:            account.UUID.String(),
		Handle:          account.Handle,
		FirstName:       account.FirstName,
		LastName:        account.LastName,
		Email:           account.Email,
		Role:            dto.RoleDTO{ID: account.RoleID, Name: account.Role.Name},
		IsEmailVerified: utils.IsTrue(account.IsEmailVerified),
		CreatedAt:       account.CreatedAt,
	}
	if out.Role.Name == "" {
		out.Role.Name = models.RoleName(account.RoleID)
	}

	if p := account.Profile; p != nil {
		out.Profile = &dto.ProfileDTO{
			ID:          p.ID,
			UserID:      p.AccountID,
			Phone:       p.Phone,
			Address:     p.Address,
			DateOfBirth: p.DateOfBirth,
			Bio:         p.Bio,
		}
	}

	return out
}

// ToRegistrationResponse converts a registration result to its API representation
func ToRegistrationResponse(result *RegistrationResult) *dto.RegistrationResponse {
	return &dto.RegistrationResponse{
		Account:  ToAccountDTO(*result.Account),
		Verified: result.Verified,
	}
}

func requestIDFrom(ctx context.Context, metadata *ClientMetadata) string {
	if metadata != nil && metadata.RequestID != "" {
		return metadata.RequestID
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// auditor writes audit log rows. Write failures are logged and otherwise ignored.
type auditor struct {
	repo   repository.AuditLogRepository
	logger *zap.Logger
}

func (a auditor) record(ctx context.Context, accountID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	if a.repo == nil {
		return
	}

	audit := &models.AuditLog{
		AccountID:    accountID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}
	if metadata != nil {
		audit.IPAddress = utils.ToPtr(metadata.IPAddress)
		audit.UserAgent = utils.ToPtr(metadata.UserAgent)
	}
	if requestID := requestIDFrom(ctx, metadata); requestID != "" {
		audit.RequestID = &requestID
	}

	if err := a.repo.Save(ctx, audit); err != nil {
		a.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
