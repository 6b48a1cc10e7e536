package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/TradeStacksInc/UNIvote2/models"
)

// MemoryStore keeps everything in process memory behind a single
// mutex, so check-and-insert is atomic and the constraint semantics
// match the Postgres implementation.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*models.Identity
	elections  map[string]*models.Election
	candidates map[string][]models.Candidate // keyed by election ID
	votes      map[string]*models.Vote
	voted      map[string]bool // voterID|electionID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*models.Identity),
		elections:  make(map[string]*models.Election),
		candidates: make(map[string][]models.Candidate),
		votes:      make(map[string]*models.Vote),
		voted:      make(map[string]bool),
	}
}

var _ Store = (*MemoryStore)(nil)

func voteKey(voterID, electionID string) string {
	return voterID + "|" + electionID
}

func (s *MemoryStore) CheckUniqueness(_ context.Context, email, externalID string) (Uniqueness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uniquenessLocked(email, externalID), nil
}

func (s *MemoryStore) uniquenessLocked(email, externalID string) Uniqueness {
	var u Uniqueness
	for _, identity := range s.identities {
		if strings.EqualFold(identity.Email, email) {
			u.EmailTaken = true
		}
		if strings.EqualFold(identity.ExternalID, externalID) {
			u.ExternalIDTaken = true
		}
	}
	return u
}

func (s *MemoryStore) CreateIdentity(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check and insert under one lock; email wins attribution when
	// both fields collide, matching the Postgres constraint order.
	u := s.uniquenessLocked(identity.Email, identity.ExternalID)
	if u.EmailTaken {
		return &ConstraintError{Field: FieldEmail}
	}
	if u.ExternalIDTaken {
		return &ConstraintError{Field: FieldExternalID}
	}

	stored := *identity
	s.identities[identity.ID] = &stored
	return nil
}

func (s *MemoryStore) GetIdentity(_ context.Context, id string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (s *MemoryStore) UpdateWalletAddress(_ context.Context, identityID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return ErrNotFound
	}
	identity.WalletAddress = address
	return nil
}

func (s *MemoryStore) CreateElection(_ context.Context, election *models.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *election
	s.elections[election.ID] = &stored
	return nil
}

func (s *MemoryStore) GetElection(_ context.Context, id string) (*models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	election, ok := s.elections[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *election
	return &copied, nil
}

func (s *MemoryStore) ListElections(_ context.Context) ([]models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elections := make([]models.Election, 0, len(s.elections))
	for _, e := range s.elections {
		elections = append(elections, *e)
	}
	return elections, nil
}

func (s *MemoryStore) CreateCandidate(_ context.Context, candidate *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidates[candidate.ElectionID] = append(s.candidates[candidate.ElectionID], *candidate)
	return nil
}

func (s *MemoryStore) ListCandidates(_ context.Context, electionID string) ([]models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]models.Candidate, len(s.candidates[electionID]))
	copy(candidates, s.candidates[electionID])
	return candidates, nil
}

func (s *MemoryStore) HasVoted(_ context.Context, voterID, electionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voted[voteKey(voterID, electionID)], nil
}

func (s *MemoryStore) InsertVote(_ context.Context, vote *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey(vote.VoterID, vote.ElectionID)
	if s.voted[key] {
		return &ConstraintError{Field: FieldVote}
	}

	stored := *vote
	s.votes[vote.ID] = &stored
	s.voted[key] = true
	return nil
}

func (s *MemoryStore) CountVotesByCandidate(_ context.Context, electionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, vote := range s.votes {
		if vote.ElectionID == electionID {
			counts[vote.CandidateID]++
		}
	}
	return counts, nil
}
