package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/lottoledger/lotto-engine/internal/httputil"
)

// RateLimit applies a per-client token bucket to command requests. Clients
// are keyed by remote host; stale buckets are dropped after an hour.
func RateLimit(rps rate.Limit, burst int) mux.MiddlewareFunc {
	limiter := &clientLimiter{
		rps:     rps,
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r)) {
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*clientBucket
	sweep   time.Time
}

func (c *clientLimiter) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.sweep) > time.Hour {
		for k, b := range c.clients {
			if now.Sub(b.lastSeen) > time.Hour {
				delete(c.clients, k)
			}
		}
		c.sweep = now
	}

	bucket, ok := c.clients[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
