package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryLimiter keeps a sliding window of request timestamps per client in
// a bounded LRU cache. Evicted clients start over with a fresh budget.
type MemoryLimiter struct {
	mu       sync.Mutex
	windows  *lru.Cache
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewMemoryLimiter tracks up to maxClients keys, each allowed limit requests
// per interval
func NewMemoryLimiter(limit int, interval time.Duration, maxClients int) (*MemoryLimiter, error) {
	cache, err := lru.New(maxClients)
	if err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		windows:  cache,
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}, nil
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.interval)

	var hits []time.Time
	if v, ok := l.windows.Get(key); ok {
		hits = v.([]time.Time)
	}

	// drop timestamps that slid out of the window
	kept := hits[:0]
	for _, ts := range hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows.Add(key, kept)
		return Result{Limit: l.limit}, &ExceededError{
			Limit:      l.limit,
			RetryAfter: kept[0].Add(l.interval).Sub(now),
		}
	}

	kept = append(kept, now)
	l.windows.Add(key, kept)
	return Result{Limit: l.limit, Remaining: l.limit - len(kept)}, nil
}
