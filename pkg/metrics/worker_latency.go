// Package metrics tracks rules engine pass counters and latency percentiles.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// LatencyTracker keeps a sliding window of durations.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
}

// NewLatencyTracker creates a tracker keeping the last windowSize samples.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record adds one measurement.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = lt.samples[drop:]
	}
	lt.samples = append(lt.samples, d.Microseconds())
}

// Stats computes percentiles over the current window.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	sorted := append([]int64(nil), lt.samples...)
	lt.mu.Unlock()

	n := len(sorted)
	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	at := func(p float64) time.Duration {
		return time.Duration(sorted[int(float64(n-1)*p)]) * time.Microsecond
	}
	return LatencyStats{
		Count: n,
		Avg:   time.Duration(sum/int64(n)) * time.Microsecond,
		P50:   at(0.50),
		P95:   at(0.95),
		P99:   at(0.99),
		Max:   time.Duration(sorted[n-1]) * time.Microsecond,
	}
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count int
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// ToMap renders the stats in milliseconds.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":  s.Count,
		"avg_ms": ms(s.Avg),
		"p50_ms": ms(s.P50),
		"p95_ms": ms(s.P95),
		"p99_ms": ms(s.P99),
		"max_ms": ms(s.Max),
	}
}

// =============================================================================
// Rules engine counters
// =============================================================================

// RulesMetrics counts per-message outcomes and rule activity.
type RulesMetrics struct {
	processed       atomic.Int64
	skipped         atomic.Int64
	failed          atomic.Int64
	rulesMatched    atomic.Int64
	actionsFailed   atomic.Int64
	contactsCreated atomic.Int64

	latency *LatencyTracker
}

// NewRulesMetrics creates an empty metrics set.
func NewRulesMetrics() *RulesMetrics {
	return &RulesMetrics{latency: NewLatencyTracker(1000)}
}

// ObserveMessage records one processed message.
func (m *RulesMetrics) ObserveMessage(d time.Duration, matched, actionsFailed, contactsCreated int) {
	if m == nil {
		return
	}
	m.processed.Add(1)
	m.rulesMatched.Add(int64(matched))
	m.actionsFailed.Add(int64(actionsFailed))
	m.contactsCreated.Add(int64(contactsCreated))
	m.latency.Record(d)
}

func (m *RulesMetrics) ObserveSkipped() {
	if m != nil {
		m.skipped.Add(1)
	}
}

func (m *RulesMetrics) ObserveFailed() {
	if m != nil {
		m.failed.Add(1)
	}
}

// Snapshot returns the current counters and latency.
func (m *RulesMetrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any{
		"processed":        m.processed.Load(),
		"skipped":          m.skipped.Load(),
		"failed":           m.failed.Load(),
		"rules_matched":    m.rulesMatched.Load(),
		"actions_failed":   m.actionsFailed.Load(),
		"contacts_created": m.contactsCreated.Load(),
		"latency":          m.latency.Stats().ToMap(),
	}
}
