package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"guild-dashboard/internal/api/response"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client address. A bucket refills
// requests tokens per window and is forgotten after a window of idleness.
type RateLimiter struct {
	buckets        *cache.Cache
	requests       int
	window         time.Duration
	message        string
	skipSuccessful bool
	skipPaths      map[string]struct{}
}

type RateOption func(*RateLimiter)

// SkipSuccessful only charges requests that end with a status >= 400.
func SkipSuccessful() RateOption {
	return func(l *RateLimiter) { l.skipSuccessful = true }
}

func SkipPaths(paths ...string) RateOption {
	return func(l *RateLimiter) {
		for _, p := range paths {
			l.skipPaths[p] = struct{}{}
		}
	}
}

// NewRateLimiter returns nil when requests or window is not positive; a nil
// limiter lets everything through.
func NewRateLimiter(requests int, window time.Duration, message string, opts ...RateOption) *RateLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	l := &RateLimiter{
		buckets:   cache.New(window, 2*window),
		requests:  requests,
		window:    window,
		message:   message,
		skipPaths: map[string]struct{}{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	every := l.window / time.Duration(l.requests)
	lim := rate.NewLimiter(rate.Every(every), l.requests)
	if err := l.buckets.Add(key, lim, l.window); err != nil {
		// lost the race to another request from the same client
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

func (l *RateLimiter) reject(c *gin.Context, lim *rate.Limiter) {
	wait := lim.Reserve()
	delay := wait.Delay()
	wait.Cancel()
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
	response.Fail(c, http.StatusTooManyRequests, l.message)
}

func (l *RateLimiter) Handler() gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if _, skip := l.skipPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}
		lim := l.bucket(c.ClientIP())
		c.Header("RateLimit-Limit", strconv.Itoa(l.requests))

		if l.skipSuccessful {
			if lim.Tokens() < 1 {
				l.reject(c, lim)
				return
			}
			c.Next()
			if c.Writer.Status() >= http.StatusBadRequest {
				lim.Allow()
			}
			return
		}

		if !lim.Allow() {
			l.reject(c, lim)
			return
		}
		c.Header("RateLimit-Remaining", strconv.Itoa(int(lim.Tokens())))
		c.Next()
	}
}
