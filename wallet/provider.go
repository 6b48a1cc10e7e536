// Package wallet abstracts the external wallet provider and the
// binding of wallet addresses to verified identities.
package wallet

import (
	"context"
	"errors"
	"sync"
)

// ErrDeclined means the user refused the connection request. It is a
// normal outcome, distinct from the provider being unreachable.
var ErrDeclined = errors.New("wallet: connection declined by user")

// ErrUnavailable means the provider could not be reached or returned a
// transport-level failure; callers may retry.
var ErrUnavailable = errors.New("wallet: provider unavailable")

// Provider is the external signer capability. Connect blocks until the
// user approves, declines, or the provider fails.
type Provider interface {
	Connect(ctx context.Context) (string, error)
}

// MockProvider is a configurable in-process provider for tests and
// local runs.
type MockProvider struct {
	mu      sync.Mutex
	address string
	decline bool
	err     error
	calls   int
}

func NewMockProvider(address string) *MockProvider {
	return &MockProvider{address: address}
}

var _ Provider = (*MockProvider)(nil)

// Decline makes subsequent Connect calls report a user refusal.
func (m *MockProvider) Decline(decline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decline = decline
}

// Fail makes subsequent Connect calls return the given error.
func (m *MockProvider) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) Connect(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if m.decline {
		return "", ErrDeclined
	}
	if m.address == "" {
		return "", ErrUnavailable
	}
	return m.address, nil
}
