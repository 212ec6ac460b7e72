package llm

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at         time.Time
	durationMs int64
}

// StatsSnapshot aggregates the latency samples of one model.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Stats tracks recent call latencies per model within a rolling window.
type Stats struct {
	mu      sync.Mutex
	byModel map[string][]sample
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		byModel: make(map[string][]sample),
		maxAge:  maxAge,
	}
}

func (s *Stats) Record(model string, durationMs int64) {
	if s == nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byModel[model] = append(prune(s.byModel[model], now.Add(-s.maxAge)), sample{at: now, durationMs: max(durationMs, 0)})
}

// Snapshot returns per-model aggregates; models without recent samples are omitted.
func (s *Stats) Snapshot() map[string]StatsSnapshot {
	out := make(map[string]StatsSnapshot)
	if s == nil {
		return out
	}
	cutoff := time.Now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	for model, samples := range s.byModel {
		samples = prune(samples, cutoff)
		s.byModel[model] = samples
		if len(samples) == 0 {
			continue
		}
		values := make([]int64, len(samples))
		var sum int64
		for i, sm := range samples {
			values[i] = sm.durationMs
			sum += sm.durationMs
		}
		slices.Sort(values)
		out[model] = StatsSnapshot{
			Count: len(values),
			MinMs: values[0],
			MaxMs: values[len(values)-1],
			AvgMs: float64(sum) / float64(len(values)),
			P50Ms: percentile(values, 50),
			P95Ms: percentile(values, 95),
		}
	}
	return out
}

func prune(samples []sample, cutoff time.Time) []sample {
	keep := samples[:0]
	for _, sm := range samples {
		if !sm.at.Before(cutoff) {
			keep = append(keep, sm)
		}
	}
	return keep
}

func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := float64(len(sorted)-1) * pct / 100.0
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	w := idx - float64(lower)
	return float64(sorted[lower]) + (float64(sorted[lower+1])-float64(sorted[lower]))*w
}
