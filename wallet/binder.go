package wallet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/encryption"
	"github.com/TradeStacksInc/UNIvote2/storage"
)

// Binder associates wallet addresses with identities. Binding is
// idempotent: rebinding the same address is a no-op, a different
// address overwrites the prior one (last writer wins; binding is a
// single-user action).
type Binder struct {
	store  storage.Store
	crypto *encryption.CryptoService
	logger *zap.Logger
}

func NewBinder(store storage.Store, crypto *encryption.CryptoService, logger *zap.Logger) *Binder {
	return &Binder{
		store:  store,
		crypto: crypto,
		logger: logger,
	}
}

// Bind persists the given address for the identity and returns the
// normalized form actually stored.
func (b *Binder) Bind(ctx context.Context, identityID, address string) (string, error) {
	normalized, err := b.crypto.NormalizeWalletAddress(address)
	if err != nil {
		return "", err
	}

	identity, err := b.store.GetIdentity(ctx, identityID)
	if err != nil {
		return "", fmt.Errorf("failed to load identity for binding: %w", err)
	}
	if identity.WalletAddress == normalized {
		return normalized, nil
	}
	if identity.WalletAddress != "" {
		b.logger.Info("rebinding wallet",
			zap.String("identity_id", identityID),
			zap.String("previous", identity.WalletAddress),
			zap.String("address", normalized))
	}

	if err := b.store.UpdateWalletAddress(ctx, identityID, normalized); err != nil {
		return "", fmt.Errorf("failed to persist wallet binding: %w", err)
	}
	return normalized, nil
}

// Establish asks the provider for an address and binds it. The call
// blocks until the provider responds; ErrDeclined and ErrUnavailable
// pass through so callers can distinguish refusal from failure.
func (b *Binder) Establish(ctx context.Context, provider Provider, identityID string) (string, error) {
	address, err := provider.Connect(ctx)
	if err != nil {
		return "", err
	}
	return b.Bind(ctx, identityID, address)
}

// Connect asks the provider for an address without persisting it, for
// flows where the identity record does not exist yet.
func (b *Binder) Connect(ctx context.Context, provider Provider) (string, error) {
	address, err := provider.Connect(ctx)
	if err != nil {
		return "", err
	}
	return b.crypto.NormalizeWalletAddress(address)
}
