package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter keys a token bucket per client address. State is
// per-process, which is all the rate limit promises — business-state
// coordination goes through the store instead.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether the address has budget for one more request.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Limiters bundles the three distinct request budgets. The numbers follow
// the original site's policy: registration submissions are scarcest, reads
// most generous.
type Limiters struct {
	Registration *IPRateLimiter // 3 per hour
	Payment      *IPRateLimiter // 5 per hour
	General      *IPRateLimiter // 100 per 15 minutes
}

func NewLimiters() *Limiters {
	return &Limiters{
		Registration: NewIPRateLimiter(rate.Every(time.Hour/3), 3),
		Payment:      NewIPRateLimiter(rate.Every(time.Hour/5), 5),
		General:      NewIPRateLimiter(rate.Every(15*time.Minute/100), 100),
	}
}
