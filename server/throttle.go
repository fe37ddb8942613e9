package server

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleIdle is how long a client IP may be silent before its bucket is
// dropped.
const throttleIdle = 10 * time.Minute

// ipThrottle is a token bucket per client IP in front of the token endpoint.
// It bounds request volume; credential guessing is bounded by ratelimit.
type ipThrottle struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*bucket
	swept   time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPThrottle returns nil, which allows everything, when rps is not positive.
func newIPThrottle(rps float64, burst int) *ipThrottle {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipThrottle{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

func (t *ipThrottle) allow(ip string, now time.Time) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.swept) > throttleIdle {
		for k, b := range t.buckets {
			if now.Sub(b.lastSeen) > throttleIdle {
				delete(t.buckets, k)
			}
		}
		t.swept = now
	}

	b, ok := t.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// ThrottleMiddleware rejects a client IP that exceeds the configured token
// endpoint rate with 429.
func (s *Server) ThrottleMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.GetEnableRateLimiting() && !s.throttle.allow(clientIP(r), time.Now()) {
			s.metrics.RateLimited(r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, "slow_down", "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
