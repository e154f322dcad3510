package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisLimiter is a sliding window shared by every API instance. Each client
// is a sorted set of request ids scored by arrival time in microseconds.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		prefix:   prefix,
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow fails open: if Redis cannot be reached the request is admitted.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()
	rkey := l.prefix + key
	windowStart := strconv.FormatInt(now.Add(-l.interval).UnixMicro(), 10)

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, rkey, "-inf", windowStart)
		card = pipe.ZCard(ctx, rkey)
		oldest = pipe.ZRangeWithScores(ctx, rkey, 0, 0)
		return nil
	})
	if err != nil {
		log.Printf("[RateLimit] Redis unavailable, admitting %s: %v", key, err)
		return Result{Limit: l.limit, Remaining: l.limit}, nil
	}

	count := int(card.Val())
	if count >= l.limit {
		retry := l.interval
		if zs := oldest.Val(); len(zs) > 0 {
			first := time.UnixMicro(int64(zs[0].Score))
			retry = first.Add(l.interval).Sub(now)
		}
		return Result{Limit: l.limit}, &ExceededError{Limit: l.limit, RetryAfter: retry}
	}

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, rkey, &redis.Z{Score: float64(now.UnixMicro()), Member: uuid.New().String()})
		pipe.Expire(ctx, rkey, l.interval)
		return nil
	})
	if err != nil {
		log.Printf("[RateLimit] Failed to record request for %s: %v", key, err)
	}
	return Result{Limit: l.limit, Remaining: l.limit - count - 1}, nil
}
