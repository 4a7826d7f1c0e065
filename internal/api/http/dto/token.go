package dto

import "time"

type TokenResponse struct {
	Success        bool      `json:"success"`
	Token          string    `json:"token"`
	VerificationID string    `json:"verificationId"`
	Expires        time.Time `json:"expires"`
	RedirectURL    string    `json:"redirectUrl,omitempty"`
}
