package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

/* RedisCollector keeps metrics in Redis so they survive restarts
 * Counters: {prefix}:outcome:{direction}:{outcome} (INCR)
 * Throughput: {prefix}:acknowledged sorted set scored by unix millis
 */
type RedisCollector struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCollector creates a collector; prefix namespaces the keys per node
func NewRedisCollector(client *redis.Client, prefix string) *RedisCollector {
	if prefix == "" {
		prefix = "exchange"
	}
	return &RedisCollector{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (c *RedisCollector) outcomeKey(d Direction, o Outcome) string {
	return fmt.Sprintf("%s:outcome:%s:%s", c.prefix, d, o)
}

func (c *RedisCollector) ackedKey() string {
	return c.prefix + ":acknowledged"
}

// Record counts one request outcome
func (c *RedisCollector) Record(ctx context.Context, direction Direction, outcome Outcome) error {
	now := c.now()

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.outcomeKey(direction, outcome))
		if outcome == Acknowledged {
			pipe.ZAdd(ctx, c.ackedKey(), redis.Z{
				Score:  float64(now.UnixMilli()),
				Member: uuid.NewString(),
			})
			pipe.ZRemRangeByScore(ctx, c.ackedKey(), "-inf", "("+strconv.FormatInt(now.Add(-window15m).UnixMilli(), 10))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return nil
}

// Collect gathers all metrics from Redis
func (c *RedisCollector) Collect(ctx context.Context) (Metrics, error) {
	m, err := collect(ctx, c)
	if err != nil {
		return Metrics{}, fmt.Errorf("collecting metrics: %w", err)
	}
	return m, nil
}

// GetOutcomeCounts reads every counter in one MGET
func (c *RedisCollector) GetOutcomeCounts(ctx context.Context) (map[Direction]map[Outcome]int64, error) {
	keys := make([]string, 0, len(Directions)*len(Outcomes))
	for _, d := range Directions {
		for _, o := range Outcomes {
			keys = append(keys, c.outcomeKey(d, o))
		}
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading outcome counters: %w", err)
	}

	counts := emptyCounts()
	i := 0
	for _, d := range Directions {
		for _, o := range Outcomes {
			if s, ok := values[i].(string); ok {
				n, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("parsing counter %s: %w", keys[i], err)
				}
				counts[d][o] = n
			}
			i++
		}
	}
	return counts, nil
}

// GetThroughput counts acknowledged messages per window with ZCOUNT
func (c *RedisCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.now()
	since := func(d time.Duration) string {
		return strconv.FormatInt(now.Add(-d).UnixMilli(), 10)
	}

	pipe := c.client.Pipeline()
	last1 := pipe.ZCount(ctx, c.ackedKey(), since(window1m), "+inf")
	last5 := pipe.ZCount(ctx, c.ackedKey(), since(window5m), "+inf")
	last15 := pipe.ZCount(ctx, c.ackedKey(), since(window15m), "+inf")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return ThroughputMetrics{}, fmt.Errorf("counting throughput: %w", err)
	}

	return ThroughputMetrics{
		LastMinute:         last1.Val(),
		LastFiveMinutes:    last5.Val(),
		LastFifteenMinutes: last15.Val(),
	}, nil
}
