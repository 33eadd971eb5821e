package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/config"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

// UnknownClient is the bucket shared by every request that carries no
// client address header.
const UnknownClient = "unknown"

// Policy is a fixed window admitting MaxRequests per Window.
type Policy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

// PolicyFromConfig builds a named policy from its config section.
func PolicyFromConfig(name string, p config.RateLimitPolicy) Policy {
	return Policy{Name: name, MaxRequests: p.MaxRequests, Window: p.Window()}
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
	Message   string    `json:"message,omitempty"`
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts requests per identity in fixed windows. Each policy
// keeps its own counters. Expired windows are dropped lazily on every
// check, so there is no background goroutine to stop.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Check records one request from identity against policy.
func (rl *RateLimiter) Check(identity string, policy Policy) Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	key := policy.Name + "|" + identity
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(policy.Window)}
		rl.windows[key] = w
		return Result{
			Allowed:   policy.MaxRequests >= 1,
			Remaining: max(policy.MaxRequests-1, 0),
			ResetTime: w.resetAt,
			Message:   deniedMessage(policy.MaxRequests >= 1),
		}
	}

	w.count++
	if w.count > policy.MaxRequests {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetTime: w.resetAt,
			Message:   deniedMessage(false),
		}
	}
	return Result{
		Allowed:   true,
		Remaining: policy.MaxRequests - w.count,
		ResetTime: w.resetAt,
	}
}

// Len reports how many live windows are tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

func deniedMessage(allowed bool) string {
	if allowed {
		return ""
	}
	return "too many requests, please try again later"
}

// ClientIdentity resolves the rate-limit key for r: the first hop of
// X-Forwarded-For, then X-Real-IP, then CF-Connecting-IP, else UnknownClient.
func ClientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}

// Middleware enforces policy and reports the window in X-RateLimit-* headers.
func (rl *RateLimiter) Middleware(policy Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := rl.Check(ClientIdentity(c.Request), policy)

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			retry := int(result.ResetTime.Sub(rl.now()).Seconds() + 0.999)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			response.TooManyRequests(c, result.Message, result)
			c.Abort()
			return
		}

		c.Next()
	}
}
