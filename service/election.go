package service

import (
	"time"

	"github.com/TradeStacksInc/UNIvote2/models"
)

// ElectionStatusResolver derives the temporal status of an election.
// It has no side effects; the clock is injectable for tests.
type ElectionStatusResolver struct {
	now func() time.Time
}

func NewElectionStatusResolver() *ElectionStatusResolver {
	return &ElectionStatusResolver{now: time.Now}
}

// WithClock substitutes the time source.
func (r *ElectionStatusResolver) WithClock(now func() time.Time) *ElectionStatusResolver {
	r.now = now
	return r
}

// Status resolves the election status at the current instant.
func (r *ElectionStatusResolver) Status(e *models.Election) models.ElectionStatus {
	return e.StatusAt(r.now())
}
