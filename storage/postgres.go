package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/TradeStacksInc/UNIvote2/models"
)

// Constraint names declared in the schema below; violation of any of
// them is translated into a field-attributed ConstraintError.
const (
	constraintEmail      = "identities_email_key"
	constraintExternalID = "identities_external_id_key"
	constraintVote       = "votes_voter_id_election_id_key"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id             TEXT PRIMARY KEY,
	full_name      TEXT NOT NULL,
	email          TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	phone          TEXT NOT NULL,
	password_hash  BYTEA NOT NULL,
	wallet_address TEXT NOT NULL DEFAULT '',
	verified       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT identities_email_key UNIQUE (email),
	CONSTRAINT identities_external_id_key UNIQUE (external_id)
);

CREATE TABLE IF NOT EXISTS elections (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
	id          TEXT PRIMARY KEY,
	election_id TEXT NOT NULL REFERENCES elections(id),
	name        TEXT NOT NULL,
	department  TEXT NOT NULL DEFAULT '',
	manifesto   TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS votes (
	id             TEXT PRIMARY KEY,
	voter_id       TEXT NOT NULL REFERENCES identities(id),
	candidate_id   TEXT NOT NULL REFERENCES candidates(id),
	election_id    TEXT NOT NULL REFERENCES elections(id),
	wallet_address TEXT NOT NULL,
	vote_hash      TEXT NOT NULL,
	cast_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT votes_voter_id_election_id_key UNIQUE (voter_id, election_id)
);
`

// PostgresStore implements Store on database/sql with the lib/pq
// driver. The unique constraints above are the authoritative guard
// against registration races and double votes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Open connects to Postgres, verifies the connection and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// mapConstraint translates a pq unique violation (SQLSTATE 23505) into
// a ConstraintError naming the colliding field.
func mapConstraint(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch {
	case pqErr.Constraint == constraintEmail || strings.Contains(pqErr.Constraint, "email"):
		return &ConstraintError{Field: FieldEmail}
	case pqErr.Constraint == constraintExternalID || strings.Contains(pqErr.Constraint, "external_id"):
		return &ConstraintError{Field: FieldExternalID}
	default:
		return &ConstraintError{Field: FieldVote}
	}
}

func (s *PostgresStore) CheckUniqueness(ctx context.Context, email, externalID string) (Uniqueness, error) {
	var u Uniqueness
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM identities WHERE lower(email) = lower($1)),
			EXISTS (SELECT 1 FROM identities WHERE lower(external_id) = lower($2))`,
		email, externalID,
	).Scan(&u.EmailTaken, &u.ExternalIDTaken)
	if err != nil {
		return Uniqueness{}, fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, full_name, email, external_id, phone, password_hash, wallet_address, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		identity.ID,
		identity.FullName,
		identity.Email,
		identity.ExternalID,
		identity.Phone,
		identity.PasswordHash,
		identity.WalletAddress,
		identity.Verified,
		identity.CreatedAt,
	)
	if err != nil {
		if cerr := mapConstraint(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, external_id, phone, password_hash, wallet_address, verified, created_at
		FROM identities WHERE id = $1`, id,
	).Scan(
		&identity.ID,
		&identity.FullName,
		&identity.Email,
		&identity.ExternalID,
		&identity.Phone,
		&identity.PasswordHash,
		&identity.WalletAddress,
		&identity.Verified,
		&identity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

func (s *PostgresStore) UpdateWalletAddress(ctx context.Context, identityID, address string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET wallet_address = $2 WHERE id = $1`,
		identityID, address,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet address: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateElection(ctx context.Context, election *models.Election) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO elections (id, title, description, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)`,
		election.ID, election.Title, election.Description, election.StartTime, election.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create election: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetElection(ctx context.Context, id string) (*models.Election, error) {
	var election models.Election
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, start_time, end_time
		FROM elections WHERE id = $1`, id,
	).Scan(&election.ID, &election.Title, &election.Description, &election.StartTime, &election.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	return &election, nil
}

func (s *PostgresStore) ListElections(ctx context.Context) ([]models.Election, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, start_time, end_time
		FROM elections ORDER BY start_time`)
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	defer rows.Close()

	var elections []models.Election
	for rows.Next() {
		var e models.Election
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan election: %w", err)
		}
		elections = append(elections, e)
	}
	return elections, rows.Err()
}

func (s *PostgresStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (id, election_id, name, department, manifesto, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		candidate.ID, candidate.ElectionID, candidate.Name,
		candidate.Department, candidate.Manifesto, candidate.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, election_id, name, department, manifesto, image_url
		FROM candidates WHERE election_id = $1 ORDER BY name`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.ID, &c.ElectionID, &c.Name, &c.Department, &c.Manifesto, &c.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *PostgresStore) HasVoted(ctx context.Context, voterID, electionID string) (bool, error) {
	var voted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE voter_id = $1 AND election_id = $2)`,
		voterID, electionID,
	).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("failed to check prior vote: %w", err)
	}
	return voted, nil
}

func (s *PostgresStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, voter_id, candidate_id, election_id, wallet_address, vote_hash, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		vote.ID, vote.VoterID, vote.CandidateID, vote.ElectionID,
		vote.WalletAddress, vote.VoteHash, vote.CastAt,
	)
	if err != nil {
		if cerr := mapConstraint(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// CountVotesByCandidate tallies server-side so only the per-candidate
// counts cross the wire.
func (s *PostgresStore) CountVotesByCandidate(ctx context.Context, electionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_id, COUNT(*)
		FROM votes WHERE election_id = $1
		GROUP BY candidate_id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var candidateID string
		var count int
		if err := rows.Scan(&candidateID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}
		counts[candidateID] = count
	}
	return counts, rows.Err()
}
