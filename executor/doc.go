/*
Package executor runs lists of storage operations under a bounded worker
pool with optional token-bucket rate limiting.

The engine takes zero-argument operations, dispatches them in input order up
to a concurrency ceiling, and aggregates an index-attributed report:

	ops := make([]executor.Op[int], len(chunks))
	for i, chunk := range chunks {
	    chunk := chunk
	    ops[i] = func(ctx context.Context) (int, error) {
	        return client.CreateMany(ctx, model, chunk, createOpts)
	    }
	}
	report, err := executor.Run(ctx, ops, executor.Options{
	    Concurrency: 8,
	    Limiter:     executor.NewRateLimiter(100),
	})

Failure isolation: one failing operation is recorded in Report.Errors under
its input index and never cancels siblings. Run itself errors only on
malformed input. Report.Results stays index-aligned with the input so
callers relying on slot positions (OR-query sharding) can correlate, while
count-aggregating callers just fold Results and inspect Errors.

Single-element inputs, Concurrency 1, and Options.Sequential take a strict
in-order path with no pool overhead, guaranteeing sequential side-effect
ordering.
*/
package executor
