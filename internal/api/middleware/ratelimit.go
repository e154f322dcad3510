package middleware

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/example/ec-storefront/internal/ratelimit"
)

// RateLimit admits requests through l, keyed by client IP and user agent.
// Limiter failures other than an exceeded budget let the request through.
func RateLimit(l ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), ratelimit.KeyFromRequest(r))

			var exceeded *ratelimit.ExceededError
			if errors.As(err, &exceeded) {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(exceeded.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(exceeded.Remaining))
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(exceeded)))
				respondError(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			if err != nil {
				log.Printf("[RateLimit] Limiter error, admitting request: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(e *ratelimit.ExceededError) int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
