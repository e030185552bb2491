package metrics

import (
	"context"
	"time"
)

// Direction is the side of the node a message went through
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// Outcome is how a request through the pipeline ended
type Outcome string

const (
	Acknowledged       Outcome = "acknowledged"
	SchemaRejected     Outcome = "schema_rejected"
	WhitelistRejected  Outcome = "whitelist_rejected"
	StoreFailed        Outcome = "store_failed"
	GatewayRejected    Outcome = "gateway_rejected"
	GatewayUnavailable Outcome = "gateway_unavailable"
)

// Directions lists every direction, in report order
var Directions = []Direction{Outbound, Inbound}

// Outcomes lists every outcome, in report order
var Outcomes = []Outcome{
	Acknowledged,
	SchemaRejected,
	WhitelistRejected,
	StoreFailed,
	GatewayRejected,
	GatewayUnavailable,
}

// Metrics represents the current state of the exchange node.
type Metrics struct {
	// OutcomeCounts maps direction to outcome to number of requests
	OutcomeCounts map[Direction]map[Outcome]int64 `json:"outcome_counts"`

	// Throughput represents acknowledged messages per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents acknowledged messages over different time windows.
type ThroughputMetrics struct {
	// LastMinute is messages acknowledged in the last 1 minute
	LastMinute int64 `json:"last_minute"`

	// LastFiveMinutes is messages acknowledged in the last 5 minutes
	LastFiveMinutes int64 `json:"last_five_minutes"`

	// LastFifteenMinutes is messages acknowledged in the last 15 minutes
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// Recorder receives the outcome of every request through the pipeline.
type Recorder interface {
	Record(ctx context.Context, direction Direction, outcome Outcome) error
}

// Collector defines the interface for reading back recorded metrics.
type Collector interface {
	Recorder

	// Collect gathers current metrics
	Collect(ctx context.Context) (Metrics, error)

	// GetOutcomeCounts returns request counts per direction and outcome
	GetOutcomeCounts(ctx context.Context) (map[Direction]map[Outcome]int64, error)

	// GetThroughput returns acknowledged messages over time windows
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)
}

const (
	window1m  = time.Minute
	window5m  = 5 * time.Minute
	window15m = 15 * time.Minute
)

func emptyCounts() map[Direction]map[Outcome]int64 {
	counts := make(map[Direction]map[Outcome]int64, len(Directions))
	for _, d := range Directions {
		counts[d] = make(map[Outcome]int64, len(Outcomes))
		for _, o := range Outcomes {
			counts[d][o] = 0
		}
	}
	return counts
}

func collect(ctx context.Context, c Collector) (Metrics, error) {
	counts, err := c.GetOutcomeCounts(ctx)
	if err != nil {
		return Metrics{}, err
	}
	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		OutcomeCounts: counts,
		Throughput:    throughput,
		Timestamp:     time.Now(),
	}, nil
}
