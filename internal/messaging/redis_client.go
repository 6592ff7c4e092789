package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultStreamMaxLen approximately caps the event stream.
const defaultStreamMaxLen = 10000

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// DedupTTL is how long a claimed message ID stays claimed.
	DedupTTL time.Duration
	// Stream receives one entry per processed message.
	Stream string
	// StreamMaxLen trims the stream on write. Zero means 10000.
	StreamMaxLen int64
	// KeyPrefix namespaces dedup keys. Zero value is "taskbot:seen:".
	KeyPrefix string
}

// RedisClient backs dedup and the event log with one Redis connection
// pool so several bot instances agree on what was already handled.
type RedisClient struct {
	rdb *redis.Client
	cfg RedisConfig
}

var (
	_ Deduper   = (*RedisClient)(nil)
	_ EventSink = (*RedisClient)(nil)
)

// NewRedisClient connects and pings. A failed ping closes the pool.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	if cfg.Stream == "" {
		cfg.Stream = StreamMessages
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "taskbot:seen:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisClient{rdb: rdb, cfg: cfg}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Claim is SETNX with the dedup TTL.
func (c *RedisClient) Claim(ctx context.Context, messageID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.key(messageID), time.Now().Unix(), c.cfg.DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", messageID, err)
	}
	return ok, nil
}

// Forget releases a claim so the ID can be processed again.
func (c *RedisClient) Forget(ctx context.Context, messageID string) error {
	if err := c.rdb.Del(ctx, c.key(messageID)).Err(); err != nil {
		return fmt.Errorf("forget %s: %w", messageID, err)
	}
	return nil
}

// Record appends ev to the stream with XADD, trimming it approximately.
func (c *RedisClient) Record(ctx context.Context, ev Event) error {
	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		MaxLen: c.cfg.StreamMaxLen,
		Approx: true,
		Values: ev.ToRedisValues(),
	}).Err()
	if err != nil {
		return fmt.Errorf("record event on %s: %w", c.cfg.Stream, err)
	}
	return nil
}

// Recent returns up to count of the newest events, newest first.
func (c *RedisClient) Recent(ctx context.Context, count int64) ([]Event, error) {
	entries, err := c.rdb.XRevRangeN(ctx, c.cfg.Stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.cfg.Stream, err)
	}
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		ev, err := EventFromRedisValues(e.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func (c *RedisClient) key(messageID string) string {
	return c.cfg.KeyPrefix + messageID
}
