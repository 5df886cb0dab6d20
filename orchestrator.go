/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package batchstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/executor"
	"github.com/syntrodata/batchstore/planner"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/relations"
	"github.com/syntrodata/batchstore/resolver"
	"github.com/syntrodata/batchstore/sqlgen"
	"github.com/syntrodata/batchstore/storage"
)

// CreateManyResult reports the outcome of one CreateMany call.
type CreateManyResult struct {
	// Count is the number of records actually inserted.
	Count int

	// DuplicatesDropped counts input records dropped before insert for
	// colliding with an earlier record on a unique constraint.
	DuplicatesDropped int

	// RelationsAttached counts entities whose many-to-many references were
	// attached after creation.
	RelationsAttached int

	// RelationFailures counts entities whose attach call failed. Attach
	// failures never undo the created records.
	RelationFailures int
}

// UpsertResult reports the outcome of one UpsertMany call.
type UpsertResult struct {
	Created   int
	Updated   int
	Unchanged int
	Total     int
}

// rawSQLProviders can execute a generated conditional-update statement.
var rawSQLProviders = map[string]bool{
	"postgres": true,
	"mysql":    true,
	"sqlite":   true,
}

// foreignKeyField is the default relation-to-column template: "team"
// resolves to "teamId".
func foreignKeyField(field string) string {
	return field + "Id"
}

// CreateMany inserts records in planned chunks. Records are deduplicated
// against the model's unique constraints first, single-relation objects are
// rewritten to foreign keys, and many-to-many references are stripped and
// attached after creation. A chunk failing on a unique violation is retried
// once with skip-duplicates when the store supports it.
func CreateMany(ctx context.Context, model string, items []storage.Record, opts ...CallOption) (CreateManyResult, error) {
	cfg, err := currentConfig()
	if err != nil {
		return CreateManyResult{}, err
	}
	if len(items) == 0 {
		return CreateManyResult{}, nil
	}

	call := applyCallOptions(opts)
	info := cfg.modelInfo(model)

	var constraints [][]string
	var descriptors []registry.RelationDescriptor
	if info != nil {
		constraints = info.UniqueConstraints
		descriptors = info.Relations
	}

	deduped, dropped := resolver.Deduplicate(items, constraints)
	if dropped > 0 {
		log.Printf("WARN: createMany %s dropped %d duplicate records before insert", model, dropped)
	}

	normalized := make([]storage.Record, len(deduped))
	for i, item := range deduped {
		normalized[i] = relations.NormalizeToForeignKey(item, descriptors, call.keyTemplate())
	}
	extracted := relations.ExtractManyToMany(normalized, descriptors)

	caps := cfg.client.Capabilities()
	execOpts := cfg.execOptions(call)
	result := CreateManyResult{DuplicatesDropped: dropped}
	var errs []error

	// Records carrying many-to-many references need their ids back, so
	// they take the single-record path; the rest go through bulk inserts.
	var plain []storage.Record
	var relIdx []int
	for i, item := range extracted.CleanedItems {
		if _, hasRels := extracted.ByIndex[i]; hasRels {
			relIdx = append(relIdx, i)
			continue
		}
		plain = append(plain, item)
	}
	sort.Ints(relIdx)

	if len(plain) > 0 {
		size := planner.OptimalBatchSize(planner.OpCreateMany, caps)
		chunks, err := planner.Chunk(plain, size)
		if err != nil {
			return result, err
		}

		ops := make([]executor.Op[int], len(chunks))
		for i, chunk := range chunks {
			chunk := chunk
			ops[i] = func(ctx context.Context) (int, error) {
				return cfg.createChunk(ctx, model, chunk, caps, call.skipDuplicates)
			}
		}
		report, err := executor.Run(ctx, ops, execOpts)
		if err != nil {
			return result, err
		}
		for _, n := range report.Results {
			result.Count += n
		}
		for _, ie := range report.Errors {
			errs = append(errs, fmt.Errorf("createMany %s chunk %d: %w", model, ie.Index, ie.Err))
		}
	}

	if len(relIdx) > 0 {
		created, relErrs := cfg.createWithRelations(ctx, model, relIdx, extracted, execOpts, &result)
		result.Count += created
		errs = append(errs, relErrs...)
	}

	return result, stderrors.Join(errs...)
}

// createChunk tries the native bulk insert and falls back to the
// skip-duplicates path on a unique violation, unless the caller already
// requested skip-duplicates.
func (c *configContext) createChunk(ctx context.Context, model string, chunk []storage.Record, caps storage.Capabilities, skipRequested bool) (int, error) {
	n, err := c.client.CreateMany(ctx, model, chunk, storage.CreateManyOptions{SkipDuplicates: skipRequested})
	if err == nil {
		return n, nil
	}
	if !skipRequested && caps.SupportsSkipDuplicates && isUniqueViolation(caps.Provider, err) {
		log.Printf("WARN: createMany %s chunk hit a unique violation, retrying with skip-duplicates", model)
		return c.client.CreateMany(ctx, model, chunk, storage.CreateManyOptions{SkipDuplicates: true})
	}
	return 0, err
}

// createWithRelations creates relation-bearing records one by one to obtain
// their ids, then issues one combined attach call per created entity.
func (c *configContext) createWithRelations(ctx context.Context, model string, relIdx []int, extracted relations.ExtractResult, execOpts executor.Options, result *CreateManyResult) (int, []error) {
	ops := make([]executor.Op[storage.Record], len(relIdx))
	for i, idx := range relIdx {
		rec := extracted.CleanedItems[idx]
		ops[i] = func(ctx context.Context) (storage.Record, error) {
			return c.client.Create(ctx, model, rec)
		}
	}

	report, err := executor.Run(ctx, ops, execOpts)
	if err != nil {
		return 0, []error{err}
	}

	var errs []error
	created := 0
	failed := make(map[int]bool, len(report.Errors))
	for _, ie := range report.Errors {
		failed[ie.Index] = true
		errs = append(errs, fmt.Errorf("createMany %s record %d: %w", model, relIdx[ie.Index], ie.Err))
	}

	entityIDs := make([]any, len(relIdx))
	byIndex := make(map[int]map[string][]storage.Ref, len(relIdx))
	for i, idx := range relIdx {
		if failed[i] {
			continue
		}
		created++
		entityIDs[i] = report.Results[i]["id"]
		byIndex[i] = extracted.ByIndex[idx]
	}

	attach := func(ctx context.Context, id any, rels map[string][]storage.Ref) error {
		return c.client.AttachRelations(ctx, model, id, rels)
	}
	applied, err := relations.ApplyManyToMany(ctx, entityIDs, byIndex, attach, execOpts)
	if err != nil {
		errs = append(errs, err)
		return created, errs
	}
	result.RelationsAttached = applied.Succeeded
	result.RelationFailures = applied.Failed
	if applied.Failed > 0 {
		log.Printf("WARN: createMany %s: %d relation attachments failed", model, applied.Failed)
	}
	return created, errs
}

// UpdateManyByKey applies per-record patches addressed by keyField. Records
// missing the key or carrying nothing but the key are filtered out, not
// fatal, and many-relation fields are stripped before the patch is built so
// connect blocks never land as literal columns; attachments are not modified
// here. SQL providers get one generated conditional-update statement per
// chunk; providers without raw statement support run chunked transactions
// of single-record updates. Either combined path falls back to plain
// per-record updates when it fails.
func UpdateManyByKey(ctx context.Context, model string, keyField string, items []storage.Record, opts ...CallOption) (int, error) {
	cfg, err := currentConfig()
	if err != nil {
		return 0, err
	}
	if keyField == "" {
		return 0, errors.NewInvalidArgumentError("keyField", "must not be empty")
	}
	if len(items) == 0 {
		return 0, nil
	}

	call := applyCallOptions(opts)
	info := cfg.modelInfo(model)
	table := model
	var descriptors []registry.RelationDescriptor
	if info != nil {
		descriptors = info.Relations
		if info.TableName != "" {
			table = info.TableName
		}
	}

	normalized := make([]storage.Record, len(items))
	for i, item := range items {
		normalized[i] = relations.NormalizeToForeignKey(item, descriptors, call.keyTemplate())
	}
	extracted := relations.ExtractManyToMany(normalized, descriptors)
	if len(extracted.ByIndex) > 0 {
		log.Printf("WARN: updateManyByKey %s dropped many-relation fields from %d records, attachments are not modified here", model, len(extracted.ByIndex))
	}

	patches := make([]sqlgen.RowPatch, 0, len(items))
	skipped := 0
	for _, item := range extracted.CleanedItems {
		key, ok := item[keyField]
		if !ok || key == nil {
			skipped++
			continue
		}
		fields := make(map[string]any, len(item)-1)
		for k, v := range item {
			if k == keyField {
				continue
			}
			fields[k] = v
		}
		if len(fields) == 0 {
			skipped++
			continue
		}
		patches = append(patches, sqlgen.RowPatch{Key: key, Fields: fields})
	}
	if skipped > 0 {
		log.Printf("WARN: updateManyByKey %s skipped %d records missing key %q or changed fields", model, skipped, keyField)
	}
	if len(patches) == 0 {
		return 0, nil
	}

	caps := cfg.client.Capabilities()
	execOpts := cfg.execOptions(call)

	var chunkOp func(chunk []sqlgen.RowPatch) executor.Op[int]
	var size int
	if rawSQLProviders[caps.Provider] {
		size = planner.OptimalBatchSize(planner.OpUpdateMany, caps)
		chunkOp = func(chunk []sqlgen.RowPatch) executor.Op[int] {
			return func(ctx context.Context) (int, error) {
				return cfg.updateChunkRaw(ctx, model, table, keyField, chunk)
			}
		}
	} else {
		size = caps.TransactionBatchSize
		if size <= 0 {
			size = planner.OptimalBatchSize(planner.OpTransaction, caps)
		}
		chunkOp = func(chunk []sqlgen.RowPatch) executor.Op[int] {
			return func(ctx context.Context) (int, error) {
				return cfg.updateChunkTx(ctx, model, chunk)
			}
		}
	}

	chunks, err := planner.Chunk(patches, size)
	if err != nil {
		return 0, err
	}
	ops := make([]executor.Op[int], len(chunks))
	for i, chunk := range chunks {
		ops[i] = chunkOp(chunk)
	}

	report, err := executor.Run(ctx, ops, execOpts)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, n := range report.Results {
		updated += n
	}
	var errs []error
	for _, ie := range report.Errors {
		errs = append(errs, fmt.Errorf("updateManyByKey %s chunk %d: %w", model, ie.Index, ie.Err))
	}
	return updated, stderrors.Join(errs...)
}

// updateChunkRaw runs one generated conditional-update statement, falling
// back to per-record updates when the statement fails.
func (c *configContext) updateChunkRaw(ctx context.Context, model, table, keyField string, chunk []sqlgen.RowPatch) (int, error) {
	stmt, err := sqlgen.BuildCaseUpdate(sqlgen.AnsiQuoter{}, table, keyField, chunk)
	if err != nil {
		return 0, err
	}
	if n, err := c.client.ExecuteRawStatement(ctx, stmt); err == nil {
		return n, nil
	} else {
		log.Printf("WARN: updateManyByKey %s combined statement failed, falling back to per-record updates: %v", model, err)
	}
	return c.updatePerRecord(ctx, model, chunk)
}

// updateChunkTx wraps the chunk's updates in one transaction, falling back
// to per-record updates when the transaction fails.
func (c *configContext) updateChunkTx(ctx context.Context, model string, chunk []sqlgen.RowPatch) (int, error) {
	ops := make([]func(ctx context.Context) error, len(chunk))
	for i, p := range chunk {
		p := p
		ops[i] = func(ctx context.Context) error {
			return c.client.Update(ctx, model, p.Key, p.Fields)
		}
	}
	if err := c.client.RunTransaction(ctx, ops, storage.TxOptions{}); err == nil {
		return len(chunk), nil
	} else {
		log.Printf("WARN: updateManyByKey %s transactional chunk failed, falling back to per-record updates: %v", model, err)
	}
	return c.updatePerRecord(ctx, model, chunk)
}

func (c *configContext) updatePerRecord(ctx context.Context, model string, chunk []sqlgen.RowPatch) (int, error) {
	updated := 0
	var errs []error
	for _, p := range chunk {
		if err := c.client.Update(ctx, model, p.Key, p.Fields); err != nil {
			errs = append(errs, fmt.Errorf("record %v: %w", p.Key, err))
			continue
		}
		updated++
	}
	return updated, stderrors.Join(errs...)
}

// UpsertMany creates or updates records keyed by the model's unique
// constraints: existing rows are fetched through one OR-query (sharded when
// it would exceed the placeholder ceiling), each record is classified as
// create, update or unchanged, and the creates and updates execute in
// planned batches with per-record salvage on batch failure. Many-relation
// fields are stripped before classification so connect blocks never count as
// changed fields or reach the store; attachments are not upserted.
func UpsertMany(ctx context.Context, model string, items []storage.Record, opts ...CallOption) (UpsertResult, error) {
	cfg, err := currentConfig()
	if err != nil {
		return UpsertResult{}, err
	}
	if len(items) == 0 {
		return UpsertResult{}, nil
	}

	info, err := cfg.opts.Introspector.GetModelInfo(model)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsertMany %s: %w", model, err)
	}
	constraints := info.UniqueConstraints
	if len(constraints) == 0 {
		return UpsertResult{}, errors.NewInvalidArgumentError("model",
			fmt.Sprintf("%s has no unique constraints to upsert against", model))
	}

	call := applyCallOptions(opts)
	caps := cfg.client.Capabilities()
	execOpts := cfg.execOptions(call)

	deduped, dropped := resolver.Deduplicate(items, constraints)
	if dropped > 0 {
		log.Printf("WARN: upsertMany %s dropped %d duplicate records before classification", model, dropped)
	}

	normalized := make([]storage.Record, len(deduped))
	for i, item := range deduped {
		normalized[i] = relations.NormalizeToForeignKey(item, info.Relations, call.keyTemplate())
	}
	extracted := relations.ExtractManyToMany(normalized, info.Relations)
	if len(extracted.ByIndex) > 0 {
		log.Printf("WARN: upsertMany %s dropped many-relation fields from %d records, attachments are not upserted", model, len(extracted.ByIndex))
	}
	normalized = extracted.CleanedItems

	existingByKey, err := cfg.fetchExistingByKey(ctx, model, normalized, constraints, caps, execOpts)
	if err != nil {
		return UpsertResult{}, err
	}

	var ignored []string
	if info.TenantKey != "" {
		ignored = append(ignored, info.TenantKey)
	}
	cls := resolver.Classify(normalized, existingByKey, constraints, ignored)

	result := UpsertResult{Unchanged: cls.Unchanged}
	var errs []error

	if len(cls.ToCreate) > 0 {
		size := planner.OptimalBatchSize(planner.OpCreateMany, caps)
		chunks, err := planner.Chunk(cls.ToCreate, size)
		if err != nil {
			return result, err
		}
		ops := make([]executor.Op[int], len(chunks))
		for i, chunk := range chunks {
			chunk := chunk
			ops[i] = func(ctx context.Context) (int, error) {
				return cfg.createChunkWithSalvage(ctx, model, chunk)
			}
		}
		report, err := executor.Run(ctx, ops, execOpts)
		if err != nil {
			return result, err
		}
		for _, n := range report.Results {
			result.Created += n
		}
		for _, ie := range report.Errors {
			errs = append(errs, fmt.Errorf("upsertMany %s create chunk %d: %w", model, ie.Index, ie.Err))
		}
	}

	if len(cls.ToUpdate) > 0 {
		ops := make([]executor.Op[struct{}], len(cls.ToUpdate))
		for i, cs := range cls.ToUpdate {
			cs := cs
			ops[i] = func(ctx context.Context) (struct{}, error) {
				return struct{}{}, cfg.client.Update(ctx, model, cs.ID, cs.ChangedFields)
			}
		}
		report, err := executor.Run(ctx, ops, execOpts)
		if err != nil {
			return result, err
		}
		result.Updated = report.Metrics.Succeeded
		for _, ie := range report.Errors {
			errs = append(errs, fmt.Errorf("upsertMany %s update %v: %w", model, cls.ToUpdate[ie.Index].ID, ie.Err))
		}
	}

	result.Total = result.Created + result.Updated + result.Unchanged
	return result, stderrors.Join(errs...)
}

// createChunkWithSalvage tries the bulk insert and salvages record by record
// when the whole chunk fails.
func (c *configContext) createChunkWithSalvage(ctx context.Context, model string, chunk []storage.Record) (int, error) {
	if n, err := c.client.CreateMany(ctx, model, chunk, storage.CreateManyOptions{}); err == nil {
		return n, nil
	} else {
		log.Printf("WARN: upsertMany %s create chunk failed, salvaging per record: %v", model, err)
	}

	created := 0
	var errs []error
	for i, rec := range chunk {
		if _, err := c.client.Create(ctx, model, rec); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		created++
	}
	return created, stderrors.Join(errs...)
}

// fetchExistingByKey looks up the records already present for the incoming
// batch, indexed by constraint key. When an existing row is addressable by
// several constraints the first declared constraint's key wins.
func (c *configContext) fetchExistingByKey(ctx context.Context, model string, items []storage.Record, constraints [][]string, caps storage.Capabilities, execOpts executor.Options) (map[string]storage.Record, error) {
	conditions := make([]map[string]any, 0, len(items))
	for _, item := range items {
		for _, constraint := range constraints {
			if _, ok := resolver.ConstraintKey(item, constraint); !ok {
				continue
			}
			cond := make(map[string]any, len(constraint))
			for _, field := range constraint {
				cond[field] = lookupValue(item[field])
			}
			conditions = append(conditions, cond)
			break
		}
	}
	if len(conditions) == 0 {
		return map[string]storage.Record{}, nil
	}

	fieldsPer := 1
	for _, constraint := range constraints {
		if len(constraint) > fieldsPer {
			fieldsPer = len(constraint)
		}
	}

	if planner.IsOrQuerySafe(len(conditions), fieldsPer, caps) {
		existing, err := c.client.FindMany(ctx, model, storage.Filter{Or: conditions})
		if err != nil {
			return nil, fmt.Errorf("upsertMany %s lookup: %w", model, err)
		}
		return indexByConstraintKey(existing, constraints), nil
	}

	shards := planner.ShardOrConditions(conditions, fieldsPer, caps)
	log.Printf("INFO: upsertMany %s lookup sharded into %d queries", model, len(shards))
	ops := make([]executor.Op[[]storage.Record], len(shards))
	for i, shard := range shards {
		shard := shard
		ops[i] = func(ctx context.Context) ([]storage.Record, error) {
			return c.client.FindMany(ctx, model, storage.Filter{Or: shard})
		}
	}
	report, err := executor.Run(ctx, ops, execOpts)
	if err != nil {
		return nil, err
	}
	if len(report.Errors) > 0 {
		return nil, fmt.Errorf("upsertMany %s lookup shard failed: %w", model, report.Errors[0].Err)
	}
	var existing []storage.Record
	for _, shard := range report.Results {
		existing = append(existing, shard...)
	}
	return indexByConstraintKey(existing, constraints), nil
}

// lookupValue aligns filter values with the resolver's comparison
// normalization, so a padded string fetches the row it will later classify
// against.
func lookupValue(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

func indexByConstraintKey(existing []storage.Record, constraints [][]string) map[string]storage.Record {
	byKey := make(map[string]storage.Record, len(existing))
	for _, rec := range existing {
		for _, constraint := range constraints {
			key, ok := resolver.ConstraintKey(rec, constraint)
			if !ok {
				continue
			}
			if _, taken := byKey[key]; !taken {
				byKey[key] = rec
			}
		}
	}
	return byKey
}

// DeleteByKeys removes the records whose keyField matches one of keys,
// chunked to the provider's delete batch size. Every chunk is attempted;
// chunk failures surface after the full pass.
func DeleteByKeys(ctx context.Context, model string, keyField string, keys []any, opts ...CallOption) (int, error) {
	cfg, err := currentConfig()
	if err != nil {
		return 0, err
	}
	if keyField == "" {
		return 0, errors.NewInvalidArgumentError("keyField", "must not be empty")
	}
	if len(keys) == 0 {
		return 0, nil
	}

	call := applyCallOptions(opts)
	caps := cfg.client.Capabilities()

	size := planner.OptimalBatchSize(planner.OpDelete, caps)
	chunks, err := planner.Chunk(keys, size)
	if err != nil {
		return 0, err
	}

	ops := make([]executor.Op[int], len(chunks))
	for i, chunk := range chunks {
		chunk := chunk
		ops[i] = func(ctx context.Context) (int, error) {
			return cfg.client.DeleteMany(ctx, model, keyField, chunk)
		}
	}

	report, err := executor.Run(ctx, ops, cfg.execOptions(call))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, n := range report.Results {
		deleted += n
	}
	var errs []error
	for _, ie := range report.Errors {
		errs = append(errs, fmt.Errorf("deleteByKeys %s chunk %d: %w", model, ie.Index, ie.Err))
	}
	return deleted, stderrors.Join(errs...)
}

// modelInfo resolves model metadata, degrading to metadata-free behavior
// when the model is not registered.
func (c *configContext) modelInfo(model string) *registry.ModelInfo {
	info, err := c.opts.Introspector.GetModelInfo(model)
	if err != nil {
		log.Printf("WARN: no metadata for model %s, proceeding without constraints or relations", model)
		return nil
	}
	return info
}

func isUniqueViolation(provider string, err error) bool {
	if errors.IsUniqueViolation(err) {
		return true
	}
	return errors.Classify(provider, err) == errors.KindUniqueViolation
}
