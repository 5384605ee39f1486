package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// redisKeyTTL keeps finished days from accumulating forever. Rows are
// never read after the day ends, so expiry is safe.
const redisKeyTTL = 48 * time.Hour

// RedisLedger stores quota totals in Redis, one key per (identity, date).
// INCRBYFLOAT gives the atomic fetch-and-add the ledger contract needs.
type RedisLedger struct {
	rdb *goredis.Client
}

// NewRedisLedger connects to Redis at addr and verifies the connection.
func NewRedisLedger(ctx context.Context, addr string) (*RedisLedger, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLedger{rdb: rdb}, nil
}

func quotaKey(identity, date string) string {
	return fmt.Sprintf("quota:%s:%s", identity, date)
}

// SecondsUsed reads the accumulated total; an absent key is zero.
func (l *RedisLedger) SecondsUsed(ctx context.Context, identity, date string) (float64, error) {
	raw, err := l.rdb.Get(ctx, quotaKey(identity, date)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota key: %w", err)
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed quota value %q: %w", raw, err)
	}
	return seconds, nil
}

// AddSeconds increments atomically server-side and refreshes the key TTL.
func (l *RedisLedger) AddSeconds(ctx context.Context, identity, date string, delta float64) (float64, error) {
	key := quotaKey(identity, date)
	total, err := l.rdb.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("increment quota key: %w", err)
	}
	l.rdb.Expire(ctx, key, redisKeyTTL)
	return total, nil
}

// Close releases the Redis client.
func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}
