package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/storage"
)

// CandidateTally is one row of an election result, ordered by votes.
type CandidateTally struct {
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name"`
	Votes       int     `json:"votes"`
	Percentage  float64 `json:"percentage"`
}

// ElectionResults is the live tally for one election.
type ElectionResults struct {
	ElectionID string           `json:"election_id"`
	TotalVotes int              `json:"total_votes"`
	Tallies    []CandidateTally `json:"tallies"`
}

// ResultsAggregator computes per-candidate tallies. It is read-only
// with respect to votes; the optional Redis cache is invalidated on
// every successful cast, and cache failures fall back to the store.
type ResultsAggregator struct {
	store    storage.Store
	cache    *redis.Client // nil disables caching
	cacheTTL time.Duration
	metrics  *MetricsCollector
	logger   *zap.Logger
}

func NewResultsAggregator(store storage.Store, cache *redis.Client, metrics *MetricsCollector, logger *zap.Logger) *ResultsAggregator {
	return &ResultsAggregator{
		store:    store,
		cache:    cache,
		cacheTTL: 30 * time.Second,
		metrics:  metrics,
		logger:   logger,
	}
}

func tallyVersionKey(electionID string) string {
	return "univote:tallyver:" + electionID
}

// cacheKey resolves the versioned cache key for an election, or ""
// when caching is disabled or the version cannot be read. The version
// is captured before the store is read; a cast that lands mid-tally
// bumps it, so the snapshot writes to a key no reader will resolve.
func (ra *ResultsAggregator) cacheKey(ctx context.Context, electionID string) string {
	if ra.cache == nil {
		return ""
	}
	version, err := ra.cache.Get(ctx, tallyVersionKey(electionID)).Result()
	if err != nil {
		if err != redis.Nil {
			ra.logger.Debug("tally cache version read failed", zap.Error(err))
			return ""
		}
		version = "0"
	}
	return "univote:tally:" + electionID + ":" + version
}

// Tally returns every candidate of the election with its vote count
// and percentage. An election with no votes returns all candidates at
// zero without error.
func (ra *ResultsAggregator) Tally(ctx context.Context, electionID string) (*ElectionResults, error) {
	started := time.Now()
	defer func() { ra.metrics.RecordTally(time.Since(started)) }()

	key := ra.cacheKey(ctx, electionID)
	if cached := ra.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	candidates, err := ra.store.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, ExternalError("candidate listing", err)
	}
	counts, err := ra.store.CountVotesByCandidate(ctx, electionID)
	if err != nil {
		return nil, ExternalError("vote tally", err)
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	tallies := make([]CandidateTally, 0, len(candidates))
	for _, candidate := range candidates {
		tally := CandidateTally{
			CandidateID: candidate.ID,
			Name:        candidate.Name,
			Votes:       counts[candidate.ID],
		}
		if total > 0 {
			tally.Percentage = float64(tally.Votes) / float64(total) * 100
		}
		tallies = append(tallies, tally)
	}

	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Votes != tallies[j].Votes {
			return tallies[i].Votes > tallies[j].Votes
		}
		return tallies[i].Name < tallies[j].Name
	})

	results := &ElectionResults{
		ElectionID: electionID,
		TotalVotes: total,
		Tallies:    tallies,
	}
	ra.toCache(ctx, key, results)
	return results, nil
}

// Invalidate bumps the election's cache version after every successful
// cast. A tally computed against the previous version can still finish
// its cache write, but onto the old key, so it is never served again.
func (ra *ResultsAggregator) Invalidate(ctx context.Context, electionID string) {
	if ra.cache == nil {
		return
	}
	if err := ra.cache.Incr(ctx, tallyVersionKey(electionID)).Err(); err != nil {
		ra.logger.Warn("tally cache invalidation failed",
			zap.String("election_id", electionID),
			zap.Error(err))
	}
}

func (ra *ResultsAggregator) fromCache(ctx context.Context, key string) *ElectionResults {
	if key == "" {
		return nil
	}
	data, err := ra.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			ra.logger.Debug("tally cache read failed", zap.Error(err))
		}
		return nil
	}
	var results ElectionResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil
	}
	return &results
}

func (ra *ResultsAggregator) toCache(ctx context.Context, key string, results *ElectionResults) {
	if key == "" {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := ra.cache.Set(ctx, key, data, ra.cacheTTL).Err(); err != nil {
		ra.logger.Debug("tally cache write failed", zap.Error(err))
	}
}
