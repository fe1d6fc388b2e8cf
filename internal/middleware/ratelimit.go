// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

const keyPrefix = "erp:rl:"

type RateLimitConfig struct {
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	FailOpen   bool
	BypassFunc func(*http.Request) bool
	OnLimited  func(http.ResponseWriter, *http.Request, *redis_rate.Result)
	Logger     *slog.Logger
}

// RateLimiter counts requests in Redis and falls back to an in-process
// token bucket per key while Redis is unreachable.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	config   RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RateLimiter{
		limiter:  redis_rate.NewLimiter(rdb),
		fallback: newLocalLimiter(time.Now),
		config:   cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.config.KeyFunc(r)

		res, err := rl.allow(r.Context(), key)
		if err != nil {
			rl.config.Logger.WarnContext(r.Context(), "rate limiter unavailable",
				"key", key,
				"fail_open", rl.config.FailOpen,
				"error", err,
			)
			if rl.config.FailOpen {
				next.ServeHTTP(w, r)
				return
			}
			core.JSONError(w, core.NewAppError(err, "service unavailable",
				http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"))
			return
		}

		setRateLimitHeaders(w, res, rl.config.Limit)

		if res.Allowed > 0 {
			next.ServeHTTP(w, r)
			return
		}

		if rl.config.OnLimited != nil {
			rl.config.OnLimited(w, r, res)
			return
		}

		retryAfter := max(int(res.RetryAfter.Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		core.JSONError(w, core.RateLimitedError(retryAfter))
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (*redis_rate.Result, error) {
	res, err := rl.limiter.Allow(ctx, key, rl.config.Limit)
	if err == nil {
		return res, nil
	}

	rl.config.Logger.DebugContext(ctx, "redis rate limit failed, using local bucket",
		"key", key,
		"error", err,
	)
	return rl.fallback.allow(key, rl.config.Limit)
}

// ClientIP prefers the last X-Forwarded-For hop, which is the one appended
// by the nearest trusted proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return strings.TrimSpace(hops[len(hops)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func KeyByIP(r *http.Request) string {
	return keyPrefix + "ip:" + ClientIP(r)
}

// KeyByIPAndPath gives each credential endpoint its own budget so a burst
// of refreshes does not consume the login allowance.
func KeyByIPAndPath(r *http.Request) string {
	return keyPrefix + "cred:" + ClientIP(r) + ":" + r.URL.Path
}

func setRateLimitHeaders(w http.ResponseWriter, res *redis_rate.Result, limit redis_rate.Limit) {
	h := w.Header()
	remaining := max(res.Remaining, 0)

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", remaining, int(res.ResetAfter.Seconds())))
}

const (
	localSweepEvery = 5 * time.Minute
	localIdleTTL    = 10 * time.Minute
)

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type localLimiter struct {
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

func newLocalLimiter(now func() time.Time) *localLimiter {
	return &localLimiter{
		now:       now,
		buckets:   make(map[string]*localBucket),
		lastSweep: now(),
	}
}

// allow mirrors redis_rate's GCRA result shape from a token bucket. Idle
// buckets are dropped inline, at most once per localSweepEvery.
func (l *localLimiter) allow(key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if limit.Period <= 0 || limit.Rate <= 0 {
		return nil, fmt.Errorf("local rate limit: invalid rate %d per %s", limit.Rate, limit.Period)
	}

	perSec := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSec)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= localSweepEvery {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > localIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(rate.Limit(perSec), limit.Burst)}
		l.buckets[key] = b
	}
	b.seen = now

	res := &redis_rate.Result{
		Limit:      limit,
		ResetAfter: interval,
		RetryAfter: -1,
	}

	if b.lim.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	res.Remaining = max(int(b.lim.TokensAt(now)), 0)

	return res, nil
}

func PerWindow(rate, burst int, window time.Duration) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: window,
	}
}
