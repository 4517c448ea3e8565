package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xenking/storefront/internal/domain/auth"
)

// RateLimitConfig sets the request budget of one subject. A subject is the
// authenticated user, or the client address for anonymous requests, unless
// KeyFunc says otherwise.
//
// A subject may spend Max requests at once; spent requests come back at an
// even pace so the full budget is restored after Window.
type RateLimitConfig struct {
	Max     int
	Window  time.Duration
	KeyFunc func(*http.Request) string
}

// SubjectKey returns the budget key of r: "user:<id>" for authenticated
// requests, the client address otherwise.
func SubjectKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.UserID
	}
	return ClientIP(r)
}

type budget struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// budgets tracks one token bucket per subject.
type budgets struct {
	cfg   RateLimitConfig
	every rate.Limit
	now   func() time.Time

	mu    sync.Mutex
	byKey map[string]*budget
}

func newBudgets(cfg RateLimitConfig, now func() time.Time) *budgets {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = SubjectKey
	}
	cfg.Max = max(cfg.Max, 1)
	return &budgets{
		cfg:   cfg,
		every: rate.Every(cfg.Window / time.Duration(cfg.Max)),
		now:   now,
		byKey: make(map[string]*budget),
	}
}

// spend takes one request from the subject's budget. When the budget is
// empty it reports how long until a request is available again.
func (b *budgets) spend(key string, now time.Time) (left int, wait time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, found := b.byKey[key]
	if !found {
		s = &budget{tokens: rate.NewLimiter(b.every, b.cfg.Max)}
		b.byKey[key] = s
	}
	s.lastSeen = now

	r := s.tokens.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return 0, d, false
	}
	return int(s.tokens.TokensAt(now)), 0, true
}

// refilledAt returns when a subject with left requests has its full budget.
func (b *budgets) refilledAt(left int, now time.Time) time.Time {
	missing := b.cfg.Max - left
	return now.Add(time.Duration(missing) * b.cfg.Window / time.Duration(b.cfg.Max))
}

// evict drops subjects idle for a full window. Their buckets are full again,
// so a later request starts from the same state.
func (b *budgets) evict(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, s := range b.byKey {
		if now.Sub(s.lastSeen) >= b.cfg.Window {
			delete(b.byKey, key)
		}
	}
}

func (b *budgets) evictEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.evict(b.now())
		}
	}
}

// RateLimit returns a middleware that gives every subject its own request
// budget. Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; a request over budget gets 429 with Retry-After.
//
// Idle subjects are never evicted; use RateLimitWithCleanup for long-running
// servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newBudgets(cfg, time.Now).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle
// subjects once per window until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	b := newBudgets(cfg, time.Now)
	go b.evictEvery(ctx, cfg.Window)
	return b.middleware
}

func (b *budgets) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := b.now()
		left, wait, ok := b.spend(b.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(b.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(b.refilledAt(left, now).Unix(), 10))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
