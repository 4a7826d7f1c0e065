package dto

import "time"

type KeyResponse struct {
	Success   bool      `json:"success"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reused    bool      `json:"reused"`
}

type KeyData struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Uses      int       `json:"uses"`
}

type ValidateResponse struct {
	Success bool    `json:"success"`
	Data    KeyData `json:"data"`
}

// ErrorResponse is the uniform denial body: a machine error code plus a
// human-readable message.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

const (
	ErrMalformedInput        = "MALFORMED_INPUT"
	ErrAccessDenied          = "ACCESS_DENIED"
	ErrVerificationPending   = "VERIFICATION_PENDING"
	ErrNoPendingVerification = "NO_PENDING_VERIFICATION"
	ErrSystemError           = "SYSTEM_ERROR"
)
