package http

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/spec-kit/repairdesk/internal/auth"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

const (
	limiterIdleTTL   = 5 * time.Minute
	limiterSweepRate = time.Minute
)

// RateLimiter applies a token bucket per authenticated principal, falling back
// to the client IP for anonymous requests.
type RateLimiter struct {
	mu        sync.Mutex
	perSecond rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter returns a limiter. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

// Handle is the Fiber middleware.
func (l *RateLimiter) Handle(c *fiber.Ctx) error {
	if l == nil || l.perSecond <= 0 {
		return c.Next()
	}
	key := "ip:" + c.IP()
	if p, ok := auth.PrincipalFromContext(c); ok {
		key = "user:" + p.User.ID
	}
	if !l.allow(key) {
		return apperrors.NewRateLimited()
	}
	return c.Next()
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterSweepRate {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > limiterIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
