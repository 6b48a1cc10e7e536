package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks counts and timings for the core operations.
type MetricsCollector struct {
	mu sync.RWMutex

	registrationCount     int
	registrationRejected  int
	registrationTotalTime time.Duration

	voteCount     int
	voteRejected  int
	voteTotalTime time.Duration

	tallyCount     int
	tallyTotalTime time.Duration
}

// OperationMetrics contains timing information for one operation kind.
type OperationMetrics struct {
	Count            int   `json:"count"`
	Rejected         int   `json:"rejected"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	AverageTimeMs    int64 `json:"average_time_ms"`
}

// MetricsResponse provides the metrics for all operations.
type MetricsResponse struct {
	Registration OperationMetrics `json:"registration"`
	Voting       OperationMetrics `json:"voting"`
	Tallying     OperationMetrics `json:"tallying"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRegistration records a completed registration attempt.
func (mc *MetricsCollector) RecordRegistration(duration time.Duration, rejected bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.registrationCount++
	if rejected {
		mc.registrationRejected++
	}
	mc.registrationTotalTime += duration
}

// RecordVote records a completed vote-cast attempt.
func (mc *MetricsCollector) RecordVote(duration time.Duration, rejected bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.voteCount++
	if rejected {
		mc.voteRejected++
	}
	mc.voteTotalTime += duration
}

// RecordTally records a tally computation.
func (mc *MetricsCollector) RecordTally(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.tallyCount++
	mc.tallyTotalTime += duration
}

// GetMetrics returns current metrics for all operations.
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		Registration: operationMetrics(mc.registrationCount, mc.registrationRejected, mc.registrationTotalTime),
		Voting:       operationMetrics(mc.voteCount, mc.voteRejected, mc.voteTotalTime),
		Tallying:     operationMetrics(mc.tallyCount, 0, mc.tallyTotalTime),
	}
}

func operationMetrics(count, rejected int, total time.Duration) OperationMetrics {
	m := OperationMetrics{
		Count:            count,
		Rejected:         rejected,
		ProcessingTimeMs: total.Milliseconds(),
	}
	if count > 0 {
		m.AverageTimeMs = total.Milliseconds() / int64(count)
	}
	return m
}
