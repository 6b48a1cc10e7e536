package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/encryption"
	"github.com/TradeStacksInc/UNIvote2/models"
	"github.com/TradeStacksInc/UNIvote2/notification"
	"github.com/TradeStacksInc/UNIvote2/storage"
	"github.com/TradeStacksInc/UNIvote2/wallet"
)

// VoteCaster runs the eligibility-gated, idempotent vote-submission
// transaction. Eligibility checks are ordered and each maps to a
// distinct rejection; the store constraint on (voter, election) is the
// authoritative double-vote guard.
type VoteCaster struct {
	store      storage.Store
	resolver   *ElectionStatusResolver
	binder     *wallet.Binder
	provider   wallet.Provider
	crypto     *encryption.CryptoService
	dispatcher *Dispatcher
	results    *ResultsAggregator
	metrics    *MetricsCollector
	logger     *zap.Logger
}

func NewVoteCaster(
	store storage.Store,
	resolver *ElectionStatusResolver,
	binder *wallet.Binder,
	provider wallet.Provider,
	crypto *encryption.CryptoService,
	dispatcher *Dispatcher,
	results *ResultsAggregator,
	metrics *MetricsCollector,
	logger *zap.Logger,
) *VoteCaster {
	return &VoteCaster{
		store:      store,
		resolver:   resolver,
		binder:     binder,
		provider:   provider,
		crypto:     crypto,
		dispatcher: dispatcher,
		results:    results,
		metrics:    metrics,
		logger:     logger,
	}
}

// Cast records a single vote for the voter in the election. Once the
// insert is issued there is no cancellation: it runs to a definite
// success-or-conflict outcome.
func (vc *VoteCaster) Cast(ctx context.Context, voterID, candidateID, electionID string) (*models.VoteReceipt, error) {
	started := time.Now()
	receipt, err := vc.cast(ctx, voterID, candidateID, electionID)
	vc.metrics.RecordVote(time.Since(started), err != nil)
	return receipt, err
}

func (vc *VoteCaster) cast(ctx context.Context, voterID, candidateID, electionID string) (*models.VoteReceipt, error) {
	// 1. The voter must exist and be verified.
	voter, err := vc.store.GetIdentity(ctx, voterID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotVerified
	}
	if err != nil {
		return nil, ExternalError("voter lookup", err)
	}
	if !voter.Verified {
		return nil, ErrNotVerified
	}

	// 2. The election must be active right now.
	election, err := vc.store.GetElection(ctx, electionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrElectionNotActive
	}
	if err != nil {
		return nil, ExternalError("election lookup", err)
	}
	if vc.resolver.Status(election) != models.ElectionActive {
		return nil, ErrElectionNotActive
	}

	// 3. Advisory double-vote check, for fast feedback only; the
	// insert below re-checks through the store constraint.
	voted, err := vc.store.HasVoted(ctx, voterID, electionID)
	if err != nil {
		return nil, ExternalError("prior vote check", err)
	}
	if voted {
		return nil, ErrAlreadyVoted
	}

	// Resolve or establish the wallet address.
	address := voter.WalletAddress
	if address == "" {
		address, err = vc.binder.Establish(ctx, vc.provider, voterID)
		switch {
		case errors.Is(err, wallet.ErrDeclined):
			return nil, ErrWalletDeclined
		case errors.Is(err, wallet.ErrUnavailable):
			return nil, ErrWalletRequired
		case err != nil:
			return nil, ExternalError("wallet binding", err)
		}
	}

	vote := &models.Vote{
		ID:            uuid.New().String(),
		VoterID:       voterID,
		CandidateID:   candidateID,
		ElectionID:    electionID,
		WalletAddress: address,
		VoteHash:      vc.crypto.VoteHash(voterID, candidateID, electionID, address),
		CastAt:        time.Now(),
	}

	if err := vc.store.InsertVote(ctx, vote); err != nil {
		var constraint *storage.ConstraintError
		if errors.As(err, &constraint) {
			// The constraint fired despite the advisory check; the
			// caller sees the same rejection either way.
			return nil, ErrAlreadyVoted
		}
		return nil, ExternalError("vote write", err)
	}

	// Confirmation delivery never unwinds the vote.
	vc.dispatcher.Dispatch(notification.VoteConfirmation(
		voter.Email, voter.FullName, election.Title, vote.VoteHash))

	vc.results.Invalidate(ctx, electionID)

	vc.logger.Info("vote recorded",
		zap.String("vote_id", vote.ID),
		zap.String("election_id", electionID),
		zap.String("vote_hash", vote.VoteHash))

	return &models.VoteReceipt{VoteID: vote.ID, VoteHash: vote.VoteHash}, nil
}
