package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet holds one token bucket per key and forgets idle keys.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

func newLimiterSet(limit rate.Limit, burst int, idle time.Duration) *limiterSet {
	return &limiterSet{limiters: map[string]*rateLimiter{}, limit: limit, burst: burst, idle: idle}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, l := range s.limiters {
		if now.After(l.expires) {
			delete(s.limiters, k)
		}
	}
	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(s.idle)
	return l.limiter.AllowN(now, 1)
}

// RateLimitMiddleware applies a simple IP based rate limiter using a token bucket.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	perMinute = max(perMinute, 1)
	set := newLimiterSet(rate.Every(time.Minute/time.Duration(perMinute)), max(perMinute/2, 1), 5*time.Minute)

	return func(ctx *gin.Context) {
		if !set.allow(ctx.ClientIP()) {
			utils.AbortWithError(ctx, http.StatusTooManyRequests, services.CodeRateLimitExceeded,
				"Too many requests. Please slow down.")
			return
		}
		ctx.Next()
	}
}

// UploadLimiter caps upload requests per caller within a fixed window.
// Counters live in Redis when a client is given so the cap holds across
// instances; otherwise an in-process token bucket of the same size is used.
type UploadLimiter struct {
	rc     *redis.Client
	max    int
	window time.Duration
	local  *limiterSet
	logger *zap.Logger
}

// NewUploadLimiter allows limit uploads per window for each caller.
func NewUploadLimiter(rc *redis.Client, limit int, window time.Duration, logger *zap.Logger) *UploadLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit = max(limit, 1)
	return &UploadLimiter{
		rc:     rc,
		max:    limit,
		window: window,
		local:  newLimiterSet(rate.Every(window/time.Duration(limit)), limit, window),
		logger: logger,
	}
}

// Handler must run after AuthRequired; unauthenticated requests are keyed by IP.
func (u *UploadLimiter) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := "ip:" + ctx.ClientIP()
		if caller, ok := CallerFrom(ctx); ok {
			key = "caller:" + caller.ID
		}
		allowed, retryAfter := u.allow(ctx.Request.Context(), key)
		if !allowed {
			if retryAfter > 0 {
				ctx.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.5)))
			}
			utils.AbortWithError(ctx, http.StatusTooManyRequests, services.CodeRateLimitExceeded,
				fmt.Sprintf("Too many upload requests. Please try again in %d minutes.", int(u.window.Minutes())))
			return
		}
		ctx.Next()
	}
}

func (u *UploadLimiter) allow(ctx context.Context, key string) (bool, time.Duration) {
	if u.rc != nil {
		ok, ttl, err := u.allowRedis(ctx, key)
		if err == nil {
			return ok, ttl
		}
		u.logger.Warn("upload limiter falling back to memory", zap.Error(err))
	}
	return u.local.allow(key), 0
}

func (u *UploadLimiter) allowRedis(ctx context.Context, key string) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	rk := "ratelimit:upload:" + key
	pipe := u.rc.TxPipeline()
	// SETNX opens the window with its TTL; INCR keeps it.
	pipe.SetNX(ctx, rk, 0, u.window)
	incr := pipe.Incr(ctx, rk)
	ttl := pipe.TTL(ctx, rk)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	return incr.Val() <= int64(u.max), ttl.Val(), nil
}
