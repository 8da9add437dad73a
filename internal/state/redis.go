package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig carries the connection settings for the shared Redis instance.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis implements Queue, Completions, and Loads against a single Redis
// instance. Queues are lists (RPUSH/BLPOP), completions are string keys with
// expiry, and load counters are plain integer keys mutated with INCR/DECR.
type Redis struct {
	client *redis.Client
}

var (
	_ Queue       = (*Redis)(nil)
	_ Completions = (*Redis)(nil)
	_ Loads       = redisLoads{}
)

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client}, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Push(ctx context.Context, queue string, payload []byte) error {
	if err := r.client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("pushing to %s: %w", queue, err)
	}
	return nil
}

func (r *Redis) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := r.client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping from %s: %w", queue, err)
	}
	// BLPOP returns [queue, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("popping from %s: unexpected reply length %d", queue, len(res))
	}
	return []byte(res[1]), nil
}

func (r *Redis) Len(ctx context.Context, queue string) (int64, error) {
	n, err := r.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("reading depth of %s: %w", queue, err)
	}
	return n, nil
}

func (r *Redis) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return val, true, nil
}

// Loads returns the load-counter view of this Redis connection. It is a
// separate value because its Get signature differs from the completion
// store's.
func (r *Redis) Loads() Loads {
	return redisLoads{client: r.client}
}

type redisLoads struct {
	client *redis.Client
}

func (l redisLoads) Increment(ctx context.Context, key string) error {
	if err := l.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("incrementing %s: %w", key, err)
	}
	return nil
}

func (l redisLoads) DecrementClamped(ctx context.Context, key string) error {
	val, err := l.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("decrementing %s: %w", key, err)
	}
	if val < 0 {
		if err := l.client.Set(ctx, key, 0, 0).Err(); err != nil {
			return fmt.Errorf("clamping %s: %w", key, err)
		}
	}
	return nil
}

func (l redisLoads) Get(ctx context.Context, key string) (int64, error) {
	val, err := l.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	return val, nil
}
