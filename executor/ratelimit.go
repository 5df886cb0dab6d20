/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package executor

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter bounds the steady-state dispatch rate across all workers of an
// execution. A nil *RateLimiter is valid and disables limiting.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a token-bucket limiter allowing perSecond
// acquisitions per second with burst 1. Non-positive perSecond returns nil,
// the disabled limiter.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Acquire blocks until a token is available or ctx is done. Waiters are
// released in arrival order. On a nil RateLimiter it returns immediately.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Limit reports the configured rate, or 0 when disabled.
func (r *RateLimiter) Limit() float64 {
	if r == nil || r.limiter == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}
