package service

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every error the core surfaces. Unmapped faults are
// treated as KindExternalDependency.
type Kind string

const (
	// KindValidation: malformed input, user-correctable, reported per field.
	KindValidation Kind = "validation"
	// KindConflict: uniqueness violation on email, external ID or vote.
	KindConflict Kind = "conflict"
	// KindIneligibility: not verified, or election not active.
	KindIneligibility Kind = "ineligibility"
	// KindExternalDependency: store, notifier or provider failure; retryable.
	KindExternalDependency Kind = "external_dependency"
	// KindWalletDeclined: user refused the wallet connection.
	KindWalletDeclined Kind = "wallet_declined"
)

// Error is the single error shape crossing the core's boundary.
// Fields is populated for validation and conflict errors so the caller
// can attribute the problem to specific inputs.
type Error struct {
	Kind   Kind
	Reason string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msg := range e.Fields {
			parts = append(parts, field+": "+msg)
		}
		return fmt.Sprintf("%s (%s)", e.Reason, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel rejections. Compared with errors.Is, so they must be
// returned as-is, never wrapped into a new *Error.
var (
	ErrNotVerified       = &Error{Kind: KindIneligibility, Reason: "voter identity is not verified"}
	ErrElectionNotActive = &Error{Kind: KindIneligibility, Reason: "election is not active"}
	ErrAlreadyVoted      = &Error{Kind: KindConflict, Reason: "a vote was already cast in this election"}
	ErrWalletRequired    = &Error{Kind: KindExternalDependency, Reason: "a wallet address is required and none could be established"}
	ErrWalletDeclined    = &Error{Kind: KindWalletDeclined, Reason: "wallet connection was declined"}
	ErrSessionNotFound   = &Error{Kind: KindValidation, Reason: "registration session not found or expired"}
)

// ValidationError reports all failing fields together so the user can
// correct everything in one pass.
func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Reason: "invalid input", Fields: fields}
}

// ConflictError attributes a uniqueness collision to a single field.
func ConflictError(field, reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Fields: map[string]string{field: reason}}
}

// ExternalError wraps a dependency failure; op names the operation for
// logs, not for the user.
func ExternalError(op string, err error) *Error {
	return &Error{Kind: KindExternalDependency, Reason: op + " failed", Err: err}
}

// KindOf extracts the taxonomy kind, defaulting unmapped faults to
// KindExternalDependency.
func KindOf(err error) Kind {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind
	}
	return KindExternalDependency
}
