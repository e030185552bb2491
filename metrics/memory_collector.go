package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryCollector keeps metrics in process; used when no Redis is configured
type MemoryCollector struct {
	mu     sync.Mutex
	counts map[Direction]map[Outcome]int64
	acked  []time.Time
	now    func() time.Time
}

// NewMemoryCollector creates an empty in-process collector
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		counts: emptyCounts(),
		now:    time.Now,
	}
}

// Record counts one request outcome
func (c *MemoryCollector) Record(_ context.Context, direction Direction, outcome Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byOutcome, ok := c.counts[direction]
	if !ok {
		return fmt.Errorf("unknown direction: %q", direction)
	}
	byOutcome[outcome]++

	if outcome == Acknowledged {
		now := c.now()
		c.acked = append(c.acked, now)
		c.trim(now)
	}
	return nil
}

// Collect gathers all metrics
func (c *MemoryCollector) Collect(ctx context.Context) (Metrics, error) {
	return collect(ctx, c)
}

// GetOutcomeCounts returns a copy of the counters
func (c *MemoryCollector) GetOutcomeCounts(_ context.Context) (map[Direction]map[Outcome]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Direction]map[Outcome]int64, len(c.counts))
	for d, byOutcome := range c.counts {
		out[d] = make(map[Outcome]int64, len(byOutcome))
		for o, n := range byOutcome {
			out[d][o] = n
		}
	}
	return out, nil
}

// GetThroughput counts acknowledged messages per window
func (c *MemoryCollector) GetThroughput(_ context.Context) (ThroughputMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.trim(now)

	var tp ThroughputMetrics
	for _, at := range c.acked {
		age := now.Sub(at)
		if age <= window1m {
			tp.LastMinute++
		}
		if age <= window5m {
			tp.LastFiveMinutes++
		}
		tp.LastFifteenMinutes++
	}
	return tp, nil
}

// trim drops timestamps older than the widest window. Caller must hold mu.
func (c *MemoryCollector) trim(now time.Time) {
	cutoff := now.Add(-window15m)
	i := 0
	for i < len(c.acked) && c.acked[i].Before(cutoff) {
		i++
	}
	c.acked = c.acked[i:]
}
