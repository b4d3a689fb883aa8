package dto

// VerifyEmailRequest represents a verification code submission
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyEmailResponse represents the outcome of a successful verification
type VerifyEmailResponse struct {
	Message  string `json:"message"`
	Verified bool   `json:"verified"`
}

// ResendChallengeRequest asks for a fresh verification code
type ResendChallengeRequest struct {
	Email   string `json:"email" validate:"required,email,max=255"`
	Channel string `json:"channel" validate:"omitempty,oneof=email"`
}

// ResendChallengeResponse represents the response after a code was re-issued
type ResendChallengeResponse struct {
	Message   string `json:"message"`
	Target    string `json:"target"` // masked
	ExpiresIn int    `json:"expires_in"`
}
