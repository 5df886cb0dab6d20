/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package storage

import (
	"context"
	"time"
)

// Record is the wire shape for all batch operations: a flat field map plus
// whatever relation-shaped values the normalizer strips before writes.
type Record = map[string]any

// Ref is a reference to a related entity by id.
type Ref struct {
	ID any `json:"id"`
}

// IDKind describes how the backing store generates and addresses ids.
type IDKind int

const (
	IDNumeric IDKind = iota
	IDOpaqueString
)

// Capabilities is a read-only snapshot describing the target store. It is
// supplied once per operation and never mutated by the batch layer.
type Capabilities struct {
	// Provider names the backing store ("postgres", "mysql", "sqlite",
	// "dynamodb", "memory", ...).
	Provider string

	// SupportsSkipDuplicates reports whether CreateMany can ignore
	// unique-constraint collisions instead of failing the batch.
	SupportsSkipDuplicates bool

	// MaxPlaceholders is the safe ceiling for statement parameters or
	// OR-terms in a single query.
	MaxPlaceholders int

	// IDKind describes the id address space.
	IDKind IDKind

	// RecommendedConcurrency is the store's preferred number of in-flight
	// batch calls. Zero means no recommendation.
	RecommendedConcurrency int

	// SupportsParallelWrites reports whether the store has a native
	// parallel write path; when false the planner degrades batches to
	// sequential single-record writes.
	SupportsParallelWrites bool

	// TransactionBatchSize bounds one transactional sub-batch. Zero means
	// the store has no transactional batch path.
	TransactionBatchSize int
}

// Filter expresses the lookup shapes the batch layer needs: a disjunction of
// per-constraint field matches, or a key-in-list match for deletes.
type Filter struct {
	// Or matches any record satisfying all fields of at least one branch.
	Or []map[string]any

	// In matches records whose Field value is one of Values.
	In *InFilter
}

// InFilter matches a single field against a value list.
type InFilter struct {
	Field  string
	Values []any
}

// CreateManyOptions configures a bulk insert.
type CreateManyOptions struct {
	// SkipDuplicates drops records colliding with a unique constraint
	// instead of failing the call.
	SkipDuplicates bool
}

// TxOptions bounds a transactional batch.
type TxOptions struct {
	MaxWait time.Duration
	Timeout time.Duration
}

// Client is the narrow storage contract the batch layer drives. Concrete
// adapters (memstore, ddb, SQL clients) implement it; the batch layer never
// reaches past it.
type Client interface {
	// Create inserts a single record and returns it with any
	// store-assigned fields (id) populated.
	Create(ctx context.Context, model string, rec Record) (Record, error)

	// CreateMany inserts a batch and returns the inserted count.
	CreateMany(ctx context.Context, model string, recs []Record, opts CreateManyOptions) (int, error)

	// Update applies a partial patch to the record addressed by id.
	Update(ctx context.Context, model string, id any, patch Record) error

	// DeleteMany removes all records whose keyField is in keys and returns
	// the deleted count.
	DeleteMany(ctx context.Context, model string, keyField string, keys []any) (int, error)

	// FindMany returns the records matching filter.
	FindMany(ctx context.Context, model string, filter Filter) ([]Record, error)

	// ExecuteRawStatement runs a generated statement (conditional bulk
	// update) and returns the affected row count.
	ExecuteRawStatement(ctx context.Context, statement string) (int, error)

	// RunTransaction executes ops inside one short transaction.
	RunTransaction(ctx context.Context, ops []func(ctx context.Context) error, opts TxOptions) error

	// AttachRelations links the entity addressed by id to the referenced
	// entities, one combined call covering every relation field.
	AttachRelations(ctx context.Context, model string, id any, relations map[string][]Ref) error

	// Capabilities returns the store's capability snapshot.
	Capabilities() Capabilities
}
