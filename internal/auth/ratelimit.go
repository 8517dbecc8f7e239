package auth

import (
	"net"
	"net/http"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// RateLimiter hands out one token bucket per API key, or per remote address
// for unauthenticated requests. Buckets live in an LRU so idle clients age out.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter returns nil when rps is not positive, which disables limiting.
func NewRateLimiter(rps float64, burst int) (*RateLimiter, error) {
	if rps <= 0 {
		return nil, nil
	}
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	buckets, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, buckets: buckets}, nil
}

func (l *RateLimiter) Allow(client string) bool {
	bucket, ok := l.buckets.Get(client)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		if existing, found, _ := l.buckets.PeekOrAdd(client, bucket); found {
			bucket = existing
		}
	}
	return bucket.Allow()
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeAuthError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		return "key:" + identity.APIKeyID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
