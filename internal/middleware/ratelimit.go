package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minIdleTTL is how long a client must be quiet before its bucket is dropped.
const minIdleTTL = 10 * time.Minute

// IPRateLimiter limits requests per client IP using a token bucket per IP.
// Buckets idle for longer than idleTTL are evicted.
type IPRateLimiter struct {
	ips       map[string]*visitor
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a per-IP rate limiter. limit is events per second;
// for N per minute use rate.Limit(float64(N)/60.0).
func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	l := &IPRateLimiter{
		ips:     make(map[string]*visitor),
		limit:   limit,
		burst:   burst,
		idleTTL: idleTTLFor(limit, burst),
		now:     time.Now,
	}
	l.lastSweep = l.now()
	return l
}

// idleTTLFor is at least the time an empty bucket needs to refill, so an evicted
// client comes back with exactly the tokens it would have had anyway.
func idleTTLFor(limit rate.Limit, burst int) time.Duration {
	if limit <= 0 || limit == rate.Inf {
		return minIdleTTL
	}
	refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	return max(refill, minIdleTTL)
}

// AuthRateLimiter returns a limiter for signup, login and resend: 10 requests
// per minute per IP, burst 5.
func AuthRateLimiter() *IPRateLimiter {
	return NewIPRateLimiter(rate.Limit(10.0/60.0), 5)
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	v, ok := l.ips[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.ips[ip] = v
	}
	v.lastSeen = now
	return v.lim
}

// sweep drops idle visitors. Callers hold l.mu.
func (l *IPRateLimiter) sweep(now time.Time) {
	for ip, v := range l.ips {
		if now.Sub(v.lastSeen) >= l.idleTTL {
			delete(l.ips, ip)
		}
	}
	l.lastSweep = now
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already replaced it with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429. Only POSTs are
// counted so that rendering the forms stays free.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !l.getLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too many attempts. Please wait a minute and try again.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
