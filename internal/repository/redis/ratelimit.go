package redis

import (
	"context"
	"fmt"
	"time"
)

const chatLimitPrefix = "ratelimit:chat:"

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a fixed one-minute window counter per profile, used to keep
// text generation requests from flooding the model backend
type RateLimiter struct {
	client            *Client
	requestsPerMinute int
	burst             int
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

// Allow counts one chat request for subject
func (r *RateLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	now := time.Now()
	windowStart := now.Truncate(time.Minute)
	key := fmt.Sprintf("%s%s:%d", chatLimitPrefix, subject, windowStart.Unix())

	pipe := r.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	limit := r.requestsPerMinute + r.burst
	count := int(incr.Val())
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   windowStart.Add(time.Minute),
	}, nil
}

// Reset clears the current window for subject
func (r *RateLimiter) Reset(ctx context.Context, subject string) error {
	windowStart := time.Now().Truncate(time.Minute)
	key := fmt.Sprintf("%s%s:%d", chatLimitPrefix, subject, windowStart.Unix())
	return r.client.rdb.Del(ctx, key).Err()
}
