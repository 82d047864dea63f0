package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raihanakbr/lokapasar/protection"
	"github.com/raihanakbr/lokapasar/util"
)

const (
	defaultRateLimit  = 5
	defaultRateWindow = 15 * time.Minute
)

// RateLimitConfig holds configuration for the per-endpoint rate limiter.
// Scope distinguishes limiter buckets when several routes share a window.
type RateLimitConfig struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// RateLimiter throttles requests per client address for the route it wraps.
// This is generic abuse protection in front of any endpoint; the login
// protection service applies its own, stricter policy behind it.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit == 0 {
		cfg.Limit = defaultRateLimit
	}
	if cfg.Window == 0 {
		cfg.Window = defaultRateWindow
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		scope := cfg.Scope
		if scope == "" {
			scope = c.FullPath()
		}

		decision, err := protection.CheckRateLimit(c.Request.Context(), scope, clientIP, "", cfg.Limit, cfg.Window)
		if err != nil {
			// A broken limiter must not take the endpoint down with it; log
			// and let the request through.
			util.LogSecurityEvent(util.SecurityEvent{
				EventType: util.EventSuspiciousActivity,
				IP:        clientIP,
				Message:   fmt.Sprintf("Rate limit check failed: %v", err),
			})
			c.Next()
			return
		}

		if !decision.Allowed {
			util.LogRateLimitExceeded("", clientIP, c.Request.URL.Path)
			util.CallTooManyRequests(c, util.APIThrottleParams{
				Msg:               "Too many requests. Please try again later.",
				Reason:            "rate_limit_exceeded",
				RetryAfterSeconds: decision.RetryAfterSeconds,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ResetRateLimit clears the limiter bucket for a client on one scope.
func ResetRateLimit(clientIP, scope string) error {
	return protection.ResetRateLimit(context.Background(), scope, clientIP, "")
}
