// Package storage defines the persistence contract for identities,
// elections, candidates and votes, with a Postgres implementation and
// an in-memory one for tests and local runs.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/TradeStacksInc/UNIvote2/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// Constraint fields reported by ConstraintError. They name the user
// input the collision should be attributed to.
const (
	FieldEmail      = "email"
	FieldExternalID = "external_id"
	FieldVote       = "vote"
)

// ConstraintError reports a uniqueness violation raised by the store
// at write time. The advisory pre-checks exist only for fast feedback;
// this error is the authoritative signal for both registration
// conflicts and double votes.
type ConstraintError struct {
	Field string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("storage: uniqueness constraint violated on %s", e.Field)
}

// Uniqueness is the result of the advisory pre-check performed before
// the registrant leaves the info-collection step.
type Uniqueness struct {
	EmailTaken      bool
	ExternalIDTaken bool
}

// Store is the gateway to the persistent store. Implementations must
// enforce uniqueness of identities(email), identities(external_id) and
// votes(voter_id, election_id) atomically at write time and surface
// violations as *ConstraintError.
type Store interface {
	// Identities
	CheckUniqueness(ctx context.Context, email, externalID string) (Uniqueness, error)
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
	UpdateWalletAddress(ctx context.Context, identityID, address string) error

	// Elections and candidates
	CreateElection(ctx context.Context, election *models.Election) error
	GetElection(ctx context.Context, id string) (*models.Election, error)
	ListElections(ctx context.Context) ([]models.Election, error)
	CreateCandidate(ctx context.Context, candidate *models.Candidate) error
	ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error)

	// Votes
	HasVoted(ctx context.Context, voterID, electionID string) (bool, error)
	InsertVote(ctx context.Context, vote *models.Vote) error
	CountVotesByCandidate(ctx context.Context, electionID string) (map[string]int, error)
}
