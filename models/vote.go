package models

import "time"

// Vote is written once and never updated; the (VoterID, ElectionID)
// pair is unique at the store.
type Vote struct {
	ID            string    `json:"id"`
	VoterID       string    `json:"voter_id"`
	CandidateID   string    `json:"candidate_id"`
	ElectionID    string    `json:"election_id"`
	WalletAddress string    `json:"wallet_address"`
	VoteHash      string    `json:"vote_hash"`
	CastAt        time.Time `json:"cast_at"`
}

// VoteReceipt is returned to the voter after a successful cast.
type VoteReceipt struct {
	VoteID   string `json:"vote_id"`
	VoteHash string `json:"vote_hash"`
}
