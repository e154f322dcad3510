package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// Result describes the caller's budget after a request was counted
type Result struct {
	Limit     int
	Remaining int
}

// ExceededError is returned when a client has used its whole budget
type ExceededError struct {
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests allowed, retry after %s", e.Limit, e.RetryAfter.Round(time.Second))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Limiter admits at most Limit requests per key within a sliding interval
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// KeyFromRequest identifies a client by IP and user agent. The IP is taken
// from RemoteAddr only; forwarding headers are honoured upstream by the
// router when the proxy is trusted.
func KeyFromRequest(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown"
	}
	return ip + ":" + r.UserAgent()
}
