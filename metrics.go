package knnlm

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see
// metrics/prometheus for a Prometheus implementation.
type MetricsCollector interface {
	// RecordSearch is called after each batch search.
	// queries is the number of query rows, k the neighbors per row.
	RecordSearch(queries, k int, duration time.Duration, err error)

	// RecordScore is called after each scored batch.
	// tokens is the number of scored target positions.
	RecordScore(sequences, tokens int, duration time.Duration, err error)

	// RecordSweepPoint is called after each persisted sweep temperature.
	RecordSweepPoint(temperature float64, queries int, meanLogProb float64, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordScore(int, int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordSweepPoint(float64, int, float64, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchQueries    atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	ScoreCount       atomic.Int64
	ScoreSequences   atomic.Int64
	ScoreTokens      atomic.Int64
	ScoreErrors      atomic.Int64
	ScoreTotalNanos  atomic.Int64
	SweepPoints      atomic.Int64
	SweepQueries     atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(queries, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchQueries.Add(int64(queries))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordScore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScore(sequences, tokens int, duration time.Duration, err error) {
	b.ScoreCount.Add(1)
	b.ScoreSequences.Add(int64(sequences))
	b.ScoreTokens.Add(int64(tokens))
	b.ScoreTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ScoreErrors.Add(1)
	}
}

// RecordSweepPoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweepPoint(_ float64, queries int, _ float64, _ time.Duration) {
	b.SweepPoints.Add(1)
	b.SweepQueries.Add(int64(queries))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:    b.SearchCount.Load(),
		SearchQueries:  b.SearchQueries.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		ScoreCount:     b.ScoreCount.Load(),
		ScoreSequences: b.ScoreSequences.Load(),
		ScoreTokens:    b.ScoreTokens.Load(),
		ScoreErrors:    b.ScoreErrors.Load(),
		ScoreAvgNanos:  avg(b.ScoreTotalNanos.Load(), b.ScoreCount.Load()),
		SweepPoints:    b.SweepPoints.Load(),
		SweepQueries:   b.SweepQueries.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount    int64
	SearchQueries  int64
	SearchErrors   int64
	SearchAvgNanos int64
	ScoreCount     int64
	ScoreSequences int64
	ScoreTokens    int64
	ScoreErrors    int64
	ScoreAvgNanos  int64
	SweepPoints    int64
	SweepQueries   int64
}
