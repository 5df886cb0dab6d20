/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package planner

import (
	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/storage"
)

// OperationKind selects the batch-size table row for a bulk operation.
type OperationKind int

const (
	OpCreateMany OperationKind = iota
	OpUpdateMany
	OpTransaction
	OpDelete
)

func (k OperationKind) String() string {
	switch k {
	case OpCreateMany:
		return "createMany"
	case OpUpdateMany:
		return "updateMany"
	case OpTransaction:
		return "transaction"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// DefaultBatchSize is the conservative fallback when a provider has no entry
// in the batch-size table.
const DefaultBatchSize = 100

// batchSizes maps provider -> operation -> optimal chunk size. DynamoDB is
// bounded by its hard API limits (25 per BatchWriteItem, 100 per
// TransactWriteItems); SQL providers by placeholder budgets.
var batchSizes = map[string]map[OperationKind]int{
	"postgres": {
		OpCreateMany:  1000,
		OpUpdateMany:  500,
		OpTransaction: 200,
		OpDelete:      1000,
	},
	"mysql": {
		OpCreateMany:  1000,
		OpUpdateMany:  500,
		OpTransaction: 200,
		OpDelete:      1000,
	},
	"sqlite": {
		OpCreateMany:  500,
		OpUpdateMany:  200,
		OpTransaction: 100,
		OpDelete:      500,
	},
	"dynamodb": {
		OpCreateMany:  25,
		OpUpdateMany:  25,
		OpTransaction: 100,
		OpDelete:      25,
	},
	"memory": {
		OpCreateMany:  1000,
		OpUpdateMany:  1000,
		OpTransaction: 1000,
		OpDelete:      1000,
	},
}

// Chunk splits items into contiguous, order-preserving slices of at most
// size elements. The last chunk may be shorter. Concatenating the chunks in
// order reproduces items exactly.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, errors.NewInvalidArgumentError("size", "chunk size must be positive")
	}
	if len(items) == 0 {
		return [][]T{}, nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks, nil
}

// OptimalBatchSize returns the provider- and operation-specific chunk size.
// Unknown providers get DefaultBatchSize rather than an error. Providers
// without a native parallel write path degrade creates to single-record
// batches.
func OptimalBatchSize(op OperationKind, caps storage.Capabilities) int {
	if op == OpCreateMany && !caps.SupportsParallelWrites && caps.TransactionBatchSize == 0 {
		return 1
	}

	sizes, ok := batchSizes[caps.Provider]
	if !ok {
		return DefaultBatchSize
	}
	size, ok := sizes[op]
	if !ok {
		return DefaultBatchSize
	}
	return size
}

// IsOrQuerySafe reports whether n OR-conditions of fieldsPerCondition fields
// each stay under the store's placeholder ceiling and can run as one query.
func IsOrQuerySafe(n, fieldsPerCondition int, caps storage.Capabilities) bool {
	ceiling := caps.MaxPlaceholders
	if ceiling <= 0 {
		ceiling = DefaultBatchSize
	}
	if fieldsPerCondition < 1 {
		fieldsPerCondition = 1
	}
	return n*fieldsPerCondition <= ceiling
}

// ShardOrConditions splits conditions into shards each safe under the
// placeholder ceiling. Every condition lands in exactly one shard and shard
// order follows input order.
func ShardOrConditions[T any](conditions []T, fieldsPerCondition int, caps storage.Capabilities) [][]T {
	if len(conditions) == 0 {
		return [][]T{}
	}
	ceiling := caps.MaxPlaceholders
	if ceiling <= 0 {
		ceiling = DefaultBatchSize
	}
	if fieldsPerCondition < 1 {
		fieldsPerCondition = 1
	}
	perShard := ceiling / fieldsPerCondition
	if perShard < 1 {
		perShard = 1
	}

	shards, _ := Chunk(conditions, perShard)
	return shards
}
