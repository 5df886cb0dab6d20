/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package relations

import (
	"context"

	"github.com/syntrodata/batchstore/executor"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
)

// ExtractResult carries items stripped of their many-relation fields plus
// the side channel of attachment instructions keyed by item position.
type ExtractResult struct {
	CleanedItems []storage.Record
	ByIndex      map[int]map[string][]storage.Ref
}

// ExtractManyToMany removes every many-relation field, whether a raw array
// of {id} references or a {connect: [...]} wrapper, from each item and
// records it in the side channel. Items without many-relations pass through
// untouched and get no map entry. Fields declared ScalarArray are never
// touched: an array-valued column keeps its values even when they look like
// {id} objects.
func ExtractManyToMany(items []storage.Record, descriptors []registry.RelationDescriptor) ExtractResult {
	out := ExtractResult{
		CleanedItems: make([]storage.Record, len(items)),
		ByIndex:      make(map[int]map[string][]storage.Ref),
	}

	manyFields := make(map[string]struct{})
	for _, d := range descriptors {
		if d.Kind == registry.ManyRelation {
			manyFields[d.FieldName] = struct{}{}
		}
	}

	for i, item := range items {
		var extracted map[string][]storage.Ref
		for field := range manyFields {
			raw, present := item[field]
			if !present {
				continue
			}
			refs, ok := parseRefs(raw)
			if !ok {
				continue
			}
			if extracted == nil {
				extracted = make(map[string][]storage.Ref)
			}
			extracted[field] = refs
		}

		if extracted == nil {
			out.CleanedItems[i] = item
			continue
		}

		cleaned := make(storage.Record, len(item))
		for k, v := range item {
			if _, isExtracted := extracted[k]; isExtracted {
				continue
			}
			cleaned[k] = v
		}
		out.CleanedItems[i] = cleaned
		out.ByIndex[i] = extracted
	}
	return out
}

// parseRefs accepts the two accepted relation shapes: a plain reference
// array and a connect wrapper.
func parseRefs(raw any) ([]storage.Ref, bool) {
	switch tv := raw.(type) {
	case []storage.Ref:
		return tv, true
	case []any:
		return refsFromSlice(tv)
	case map[string]any:
		connect, ok := tv["connect"]
		if !ok {
			return nil, false
		}
		return parseRefs(connect)
	default:
		return nil, false
	}
}

func refsFromSlice(values []any) ([]storage.Ref, bool) {
	refs := make([]storage.Ref, 0, len(values))
	for _, v := range values {
		switch rv := v.(type) {
		case storage.Ref:
			refs = append(refs, rv)
		case map[string]any:
			id, ok := rv["id"]
			if !ok {
				return nil, false
			}
			refs = append(refs, storage.Ref{ID: id})
		default:
			// not reference-shaped; leave the field alone
			return nil, false
		}
	}
	return refs, true
}

// NormalizeToForeignKey rewrites populated single-relation fields into their
// foreign-key scalar form: {team: {id: X}} becomes {keyTemplate("team"): X}.
// When both the relation object and its resolved foreign-key field are
// present the foreign key wins and the nested object is dropped, so the
// store never sees conflicting nested-write instructions.
func NormalizeToForeignKey(item storage.Record, descriptors []registry.RelationDescriptor, keyTemplate func(fieldName string) string) storage.Record {
	normalized := make(storage.Record, len(item))
	for k, v := range item {
		normalized[k] = v
	}

	for _, d := range descriptors {
		if d.Kind != registry.SingleRelation {
			continue
		}
		raw, present := normalized[d.FieldName]
		if !present || raw == nil {
			continue
		}
		id, ok := relationID(raw)
		if !ok {
			continue
		}

		fkField := keyTemplate(d.FieldName)
		if existing, hasFK := normalized[fkField]; hasFK && existing != nil {
			delete(normalized, d.FieldName)
			continue
		}
		normalized[fkField] = id
		delete(normalized, d.FieldName)
	}
	return normalized
}

func relationID(raw any) (any, bool) {
	switch tv := raw.(type) {
	case storage.Ref:
		return tv.ID, tv.ID != nil
	case map[string]any:
		id, ok := tv["id"]
		if !ok || id == nil {
			return nil, false
		}
		return id, true
	default:
		return nil, false
	}
}

// AttachFn issues one combined attach call for an entity covering all its
// relation fields.
type AttachFn func(ctx context.Context, entityID any, relations map[string][]storage.Ref) error

// ApplyResult counts attach outcomes per entity.
type ApplyResult struct {
	Succeeded int
	Failed    int
}

// ApplyManyToMany attaches the extracted relations to their entities. Each
// entity with relations gets exactly one attach call merging all its
// relation fields; references with nil ids are filtered out first. Failures
// are counted, never fatal to sibling entities. entityIDs is index-aligned
// with the extraction input.
func ApplyManyToMany(ctx context.Context, entityIDs []any, byIndex map[int]map[string][]storage.Ref, attach AttachFn, opts executor.Options) (ApplyResult, error) {
	type attachment struct {
		id        any
		relations map[string][]storage.Ref
	}

	pending := make([]attachment, 0, len(byIndex))
	for idx := 0; idx < len(entityIDs); idx++ {
		fields, ok := byIndex[idx]
		if !ok || entityIDs[idx] == nil {
			continue
		}
		merged := make(map[string][]storage.Ref, len(fields))
		for field, refs := range fields {
			valid := make([]storage.Ref, 0, len(refs))
			for _, ref := range refs {
				if ref.ID == nil {
					continue
				}
				valid = append(valid, ref)
			}
			if len(valid) > 0 {
				merged[field] = valid
			}
		}
		if len(merged) == 0 {
			continue
		}
		pending = append(pending, attachment{id: entityIDs[idx], relations: merged})
	}

	if len(pending) == 0 {
		return ApplyResult{}, nil
	}

	ops := make([]executor.Op[struct{}], len(pending))
	for i, a := range pending {
		a := a
		ops[i] = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, attach(ctx, a.id, a.relations)
		}
	}

	report, err := executor.Run(ctx, ops, opts)
	if err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{
		Succeeded: report.Metrics.Succeeded,
		Failed:    report.Metrics.Failed,
	}, nil
}
