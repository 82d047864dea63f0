package protection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raihanakbr/lokapasar/config"
	"github.com/redis/go-redis/v9"
)

// RateLimitDecision is the outcome of a generic rate-limit check.
type RateLimitDecision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// windowState is the per-key payload stored in Redis. An absent or expired
// entry is equivalent to count zero.
type windowState struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"reset_at"`
}

// rateLimitNow is swapped out by tests that need a pinned clock.
var rateLimitNow = time.Now

// rateLimitKey builds the composite key for a scope+address+identifier pair.
func rateLimitKey(scope, address, identifier string) string {
	if identifier == "" {
		identifier = "-"
	}
	return fmt.Sprintf("rl:%s:%s:%s", scope, address, identifier)
}

// advanceWindow applies one hit to a window state. It returns the next state,
// the TTL the state should be stored with, and the decision. The TTL never
// exceeds the remaining window, so an entry cannot outlive its own reset time.
func advanceWindow(state windowState, limit int, window time.Duration, now time.Time) (windowState, time.Duration, RateLimitDecision) {
	if state.Count == 0 || state.ResetAt <= now.Unix() {
		next := windowState{Count: 1, ResetAt: now.Add(window).Unix()}
		return next, window, RateLimitDecision{Allowed: true, RetryAfterSeconds: 0}
	}

	state.Count++
	retryAfter := int(state.ResetAt - now.Unix())
	if retryAfter < 1 {
		retryAfter = 1
	}
	ttl := time.Duration(retryAfter) * time.Second
	decision := RateLimitDecision{Allowed: state.Count <= limit, RetryAfterSeconds: retryAfter}
	return state, ttl, decision
}

// CheckRateLimit counts a hit against a fixed window keyed by
// scope+address+identifier and reports whether it stays within the limit.
// Concurrent hits against the same key may race; overcounting only tightens
// the limit, which is the safe direction. Without a Redis client the check
// allows the request (the limiter is defense in depth, not the core policy).
func CheckRateLimit(ctx context.Context, scope, address, identifier string, limit int, window time.Duration) (RateLimitDecision, error) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return RateLimitDecision{Allowed: true}, nil
	}

	key := rateLimitKey(scope, address, NormalizeIdentifier(identifier))

	var state windowState
	raw, err := rdb.Get(ctx, key).Result()
	switch {
	case err == redis.Nil:
		// fresh window below
	case err != nil:
		return RateLimitDecision{}, fmt.Errorf("rate limit read failed: %w", err)
	default:
		if jsonErr := json.Unmarshal([]byte(raw), &state); jsonErr != nil {
			// A corrupt payload counts as an expired window.
			state = windowState{}
		}
	}

	next, ttl, decision := advanceWindow(state, limit, window, rateLimitNow())

	payload, err := json.Marshal(next)
	if err != nil {
		return RateLimitDecision{}, err
	}
	if err := rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return RateLimitDecision{}, fmt.Errorf("rate limit write failed: %w", err)
	}

	return decision, nil
}

// ResetRateLimit clears the window for a key. Used by tests and admin tooling.
func ResetRateLimit(ctx context.Context, scope, address, identifier string) error {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, rateLimitKey(scope, address, NormalizeIdentifier(identifier))).Err()
}
