package httpapi

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit wraps a handler with a per-caller token bucket on mutating
// methods. Read-only queries pass through unthrottled.
func RateLimit(next http.Handler, perSecond float64) http.Handler {
	if perSecond <= 0 {
		return next
	}
	limiters := &callerLimiters{
		perSecond: perSecond,
		burst:     int(perSecond) + 1,
		limiters:  make(map[string]*rate.Limiter),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !limiters.allow(caller(r)) {
			writeError(w, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errTooManyRequests = &rateError{}

type rateError struct{}

func (*rateError) Error() string { return "rate limit exceeded" }

type callerLimiters struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func (c *callerLimiters) allow(caller string) bool {
	c.mu.Lock()
	limiter, ok := c.limiters[caller]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.perSecond), c.burst)
		c.limiters[caller] = limiter
	}
	c.mu.Unlock()
	return limiter.Allow()
}
