/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package batchstore

import (
	"github.com/syntrodata/batchstore/executor"
)

// CallOption overrides a configured default for a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	parallel       *bool
	concurrency    *int
	rateLimit      *float64
	skipDuplicates bool
	fkTemplate     func(fieldName string) string
}

// keyTemplate resolves the relation-to-foreign-key naming for this call.
func (o callOptions) keyTemplate() func(fieldName string) string {
	if o.fkTemplate != nil {
		return o.fkTemplate
	}
	return foreignKeyField
}

// WithParallel enables or disables pooled execution for this call.
func WithParallel(parallel bool) CallOption {
	return func(o *callOptions) {
		o.parallel = &parallel
	}
}

// WithConcurrency bounds in-flight chunk calls for this call.
func WithConcurrency(n int) CallOption {
	return func(o *callOptions) {
		o.concurrency = &n
	}
}

// WithRateLimit caps dispatched storage calls per second for this call.
// Zero lifts the configured limit.
func WithRateLimit(perSecond float64) CallOption {
	return func(o *callOptions) {
		o.rateLimit = &perSecond
	}
}

// WithSkipDuplicates requests duplicate-skipping inserts from the start
// instead of waiting for a unique violation to trigger the retry path.
func WithSkipDuplicates(skip bool) CallOption {
	return func(o *callOptions) {
		o.skipDuplicates = skip
	}
}

// WithForeignKeyTemplate overrides how a single-relation field name maps to
// its foreign-key column. The default appends "Id".
func WithForeignKeyTemplate(template func(fieldName string) string) CallOption {
	return func(o *callOptions) {
		o.fkTemplate = template
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}
	return call
}

// execOptions resolves the effective executor settings for one operation:
// per-call overrides, then configured defaults, then the store's
// recommendation.
func (c *configContext) execOptions(call callOptions) executor.Options {
	parallel := c.opts.Parallel
	if call.parallel != nil {
		parallel = *call.parallel
	}

	concurrency := c.opts.Concurrency
	if call.concurrency != nil {
		concurrency = *call.concurrency
	}
	if concurrency <= 0 {
		concurrency = c.client.Capabilities().RecommendedConcurrency
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	limiter := c.limiter
	if call.rateLimit != nil {
		limiter = executor.NewRateLimiter(*call.rateLimit)
	}

	return executor.Options{
		Concurrency: concurrency,
		Limiter:     limiter,
		Sequential:  !parallel,
	}
}
