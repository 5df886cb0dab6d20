/*
Package batchstore provides a parallel batch-execution layer above a narrow
storage client, turning large create/update/upsert/delete workloads into
planned, bounded, partially-failing batches.

The library follows a configure-once, call-anywhere workflow:
  - Configure: install the storage client and process-wide defaults
  - Register: describe models (constraints, relations) in the registry
  - Operate: run batch operations with per-call overrides

Key Features:
  - Provider-aware batch planning (chunk sizes, placeholder ceilings)
  - Bounded parallel execution with index-aligned partial-failure reports
  - Token-bucket rate limiting across the whole pool
  - Duplicate detection and skip-duplicates retry on unique violations
  - Create-or-update classification with minimal change sets
  - Relation normalization (foreign keys, many-to-many side channel)
  - Semantic error types with a provider-driven classifier
  - In-memory and DynamoDB storage adapters

Basic Usage:

	store := memstore.New().WithUniqueConstraints("User", [][]string{{"email"}})
	_ = batchstore.Configure(store, batchstore.Options{Parallel: true})

	registry.RegisterModel(&registry.ModelInfo{
	    Name:              "User",
	    UniqueConstraints: [][]string{{"email"}},
	})

	result, err := batchstore.UpsertMany(ctx, "User", records,
	    batchstore.WithConcurrency(8))

For more information, see the documentation at
https://github.com/syntrodata/batchstore
*/
package batchstore
