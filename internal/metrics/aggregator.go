// Package metrics maintains the running business KPIs for the scoring
// service.
package metrics

import (
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Aggregator owns the business counters. All increments go through Record
// under a single mutex; Snapshot returns a point-in-time consistent copy.
// Counters are monotonic for the lifetime of the process.
type Aggregator struct {
	mu             sync.Mutex
	snapshot       domain.BusinessSnapshot
	valueEstimates map[domain.RiskSegment]float64
}

// NewAggregator creates an Aggregator. valueEstimates holds the expected
// recovered value per flagged claim by segment; segments absent from the map
// contribute no savings.
func NewAggregator(valueEstimates map[domain.RiskSegment]float64) *Aggregator {
	estimates := make(map[domain.RiskSegment]float64, len(valueEstimates))
	for seg, v := range valueEstimates {
		estimates[seg] = v
	}
	now := time.Now().UTC()
	return &Aggregator{
		snapshot: domain.BusinessSnapshot{
			StartedAt:   now,
			LastUpdated: now,
		},
		valueEstimates: estimates,
	}
}

// Record folds one scoring outcome into the counters.
func (a *Aggregator) Record(result *domain.ScorecardResult, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snapshot.TotalScored++
	switch result.RiskSegment {
	case domain.SegmentHigh:
		a.snapshot.HighCount++
	case domain.SegmentMedium:
		a.snapshot.MediumCount++
	case domain.SegmentLow:
		a.snapshot.LowCount++
	}
	if result.ModelMode == domain.ModeFallback {
		a.snapshot.FallbackCount++
	}
	a.snapshot.EstimatedSavings += a.valueEstimates[result.RiskSegment]
	a.snapshot.TotalLatencyMs += float64(latency) / float64(time.Millisecond)
	a.snapshot.LastUpdated = time.Now().UTC()
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() domain.BusinessSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}
