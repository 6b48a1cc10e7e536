package models

import "time"

// ElectionStatus is derived from the election time bounds, never stored.
type ElectionStatus string

const (
	ElectionUpcoming ElectionStatus = "upcoming"
	ElectionActive   ElectionStatus = "active"
	ElectionClosed   ElectionStatus = "closed"
)

// Election is immutable once created. Votes are accepted while the
// current time falls in [StartTime, EndTime).
type Election struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// StatusAt derives the election status at the given instant.
func (e *Election) StatusAt(now time.Time) ElectionStatus {
	switch {
	case now.Before(e.StartTime):
		return ElectionUpcoming
	case now.Before(e.EndTime):
		return ElectionActive
	default:
		return ElectionClosed
	}
}

// Candidate is read-only ballot content for an election.
type Candidate struct {
	ID         string `json:"id"`
	ElectionID string `json:"election_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Manifesto  string `json:"manifesto"`
	ImageURL   string `json:"image_url,omitempty"`
}
