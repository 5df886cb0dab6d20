/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syntrodata/batchstore/errors"
)

// Op is a single unit of work: one storage call wrapped as a closure.
type Op[T any] func(ctx context.Context) (T, error)

// IndexedError attributes a failure to the input position of its Op.
type IndexedError struct {
	Index int
	Err   error
}

func (e IndexedError) Error() string { return e.Err.Error() }

func (e IndexedError) Unwrap() error { return e.Err }

// Metrics describes one execution run.
type Metrics struct {
	Duration  time.Duration
	Succeeded int
	Failed    int
}

// Report is the aggregated outcome of one Run call. Results is always
// index-aligned with the input ops; a failed slot holds the zero value of T
// and its index appears in Errors. Partial failure is reported, never thrown.
type Report[T any] struct {
	Results []T
	Errors  []IndexedError
	Metrics Metrics
}

// Failed reports whether every operation failed.
func (r *Report[T]) Failed() bool {
	return len(r.Results) > 0 && len(r.Errors) == len(r.Results)
}

// Options configures a Run call.
type Options struct {
	// Concurrency is the maximum number of in-flight operations. Must be
	// positive.
	Concurrency int

	// Limiter, when non-nil, is acquired before every dispatch.
	Limiter *RateLimiter

	// Sequential forces strict in-order execution regardless of
	// Concurrency. Used when the caller relies on sequential side-effect
	// ordering or parallelism is disabled process-wide.
	Sequential bool
}

// Run executes ops under a bounded worker pool. Operations start in input
// order and may complete out of order; results and errors are attributed to
// the original index. A failing operation never cancels its siblings; Run
// returns an error only for malformed input.
//
// Inputs of length <= 1, Sequential mode, and Concurrency 1 all take the
// strict sequential path, which awaits each operation before starting the
// next and skips pool overhead.
func Run[T any](ctx context.Context, ops []Op[T], opts Options) (Report[T], error) {
	if opts.Concurrency <= 0 {
		return Report[T]{}, errors.NewInvalidArgumentError("concurrency", "must be positive")
	}

	report := Report[T]{
		Results: make([]T, len(ops)),
	}
	if len(ops) == 0 {
		return report, nil
	}

	start := time.Now()
	if len(ops) <= 1 || opts.Sequential || opts.Concurrency == 1 {
		runSequential(ctx, ops, opts.Limiter, &report)
	} else {
		runPooled(ctx, ops, opts, &report)
	}
	report.Metrics.Duration = time.Since(start)
	report.Metrics.Failed = len(report.Errors)
	report.Metrics.Succeeded = len(ops) - len(report.Errors)
	return report, nil
}

func runSequential[T any](ctx context.Context, ops []Op[T], limiter *RateLimiter, report *Report[T]) {
	for i, op := range ops {
		if err := limiter.Acquire(ctx); err != nil {
			report.Errors = append(report.Errors, IndexedError{Index: i, Err: err})
			continue
		}
		res, err := op(ctx)
		if err != nil {
			report.Errors = append(report.Errors, IndexedError{Index: i, Err: err})
			continue
		}
		report.Results[i] = res
	}
}

func runPooled[T any](ctx context.Context, ops []Op[T], opts Options, report *Report[T]) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(opts.Concurrency)

	for i, op := range ops {
		// Take a token before dispatching the next queued operation so
		// the whole pool honors the rate ceiling.
		if err := opts.Limiter.Acquire(ctx); err != nil {
			mu.Lock()
			report.Errors = append(report.Errors, IndexedError{Index: i, Err: err})
			mu.Unlock()
			continue
		}

		i, op := i, op
		g.Go(func() error {
			res, err := op(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors = append(report.Errors, IndexedError{Index: i, Err: err})
				return nil
			}
			report.Results[i] = res
			return nil
		})
	}

	// Worker closures never return errors; Wait only joins the pool.
	_ = g.Wait()

	sortIndexedErrors(report.Errors)
}

// sortIndexedErrors keeps the error list in input order; completion order is
// nondeterministic under the pool.
func sortIndexedErrors(errs []IndexedError) {
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && errs[j-1].Index > errs[j].Index; j-- {
			errs[j-1], errs[j] = errs[j], errs[j-1]
		}
	}
}
