package service

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// OTPVerifier issues and checks the 6-digit one-time codes used to
// confirm control of an email address. Issuing a new code replaces the
// previous one for the session; no expiry or attempt limit is applied
// here.
type OTPVerifier struct{}

func NewOTPVerifier() *OTPVerifier {
	return &OTPVerifier{}
}

const otpDigits = 6

// Issue generates a fresh 6-digit code.
func (v *OTPVerifier) Issue() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}

// Check reports whether the submitted code matches the issued one.
// Empty or missing codes never match.
func (v *OTPVerifier) Check(submitted, issued string) bool {
	if issued == "" || len(submitted) != len(issued) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(issued)) == 1
}
