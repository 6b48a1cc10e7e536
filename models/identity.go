package models

import "time"

// Identity is a registered, verified member of the organization.
// Email and ExternalID are unique across all identities; the store
// enforces both with hard constraints.
type Identity struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	ExternalID    string    `json:"external_id"`
	Phone         string    `json:"phone"`
	PasswordHash  []byte    `json:"-"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegistrationForm carries the fields a registrant submits before
// verification. Password fields never leave process memory.
type RegistrationForm struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	ExternalID      string `json:"external_id"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}
