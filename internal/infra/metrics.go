package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Cache counters
	fastHits    atomic.Uint64
	durableHits atomic.Uint64
	misses      atomic.Uint64

	// Provider counters
	providerCalls  atomic.Uint64
	providerErrors atomic.Uint64
	coalesced      atomic.Uint64
	fallbackServes atomic.Uint64

	// Provider latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFastHit records a fast-tier cache hit.
func (m *Metrics) RecordFastHit() {
	m.fastHits.Add(1)
}

// RecordDurableHit records a durable-tier cache hit.
func (m *Metrics) RecordDurableHit() {
	m.durableHits.Add(1)
}

// RecordMiss records a full cache miss.
func (m *Metrics) RecordMiss() {
	m.misses.Add(1)
}

// RecordProviderCall records one upstream fetch with its latency.
func (m *Metrics) RecordProviderCall(latencyNs int64) {
	m.providerCalls.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordProviderError records a failed upstream fetch.
func (m *Metrics) RecordProviderError() {
	m.providerErrors.Add(1)
}

// RecordCoalesced records a request that piggybacked on an in-flight fetch.
func (m *Metrics) RecordCoalesced() {
	m.coalesced.Add(1)
}

// RecordFallback records a quote served from the static catalog.
func (m *Metrics) RecordFallback() {
	m.fallbackServes.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FastHits       uint64
	DurableHits    uint64
	Misses         uint64
	ProviderCalls  uint64
	ProviderErrors uint64
	Coalesced      uint64
	FallbackServes uint64
	AvgLatencyNs   int64
	Timestamp      time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		FastHits:       m.fastHits.Load(),
		DurableHits:    m.durableHits.Load(),
		Misses:         m.misses.Load(),
		ProviderCalls:  m.providerCalls.Load(),
		ProviderErrors: m.providerErrors.Load(),
		Coalesced:      m.coalesced.Load(),
		FallbackServes: m.fallbackServes.Load(),
		AvgLatencyNs:   avgLatency,
		Timestamp:      time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.fastHits.Store(0)
	m.durableHits.Store(0)
	m.misses.Store(0)
	m.providerCalls.Store(0)
	m.providerErrors.Store(0)
	m.coalesced.Store(0)
	m.fallbackServes.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
}
