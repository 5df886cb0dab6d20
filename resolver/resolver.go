/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/syntrodata/batchstore/storage"
)

// alwaysIgnored are never considered changed and never emitted in patches.
var alwaysIgnored = []string{"id", "createdAt", "updatedAt"}

// ChangeSet is the minimal patch for one existing record.
type ChangeSet struct {
	ID            any
	ChangedFields storage.Record
}

// Classification partitions incoming records against the fetched existing
// rows.
type Classification struct {
	ToCreate  []storage.Record
	ToUpdate  []ChangeSet
	Unchanged int
}

// ConstraintKey builds the lookup key for rec under one unique constraint.
// It returns false when any constraint field is missing or absent
// (nil/empty), in which case the constraint cannot address the record.
func ConstraintKey(rec storage.Record, constraint []string) (string, bool) {
	if len(constraint) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(constraint))
	for _, field := range constraint {
		v, ok := rec[field]
		if !ok {
			return "", false
		}
		norm := normalizeValue(v)
		if norm == absentSentinel {
			return "", false
		}
		parts = append(parts, field+"="+norm)
	}
	return strings.Join(parts, "|"), true
}

// Deduplicate drops every record sharing any unique constraint's key with an
// earlier record, preserving first occurrences and input order. The second
// return is the dropped count, surfaced by the orchestrator for
// observability.
func Deduplicate(items []storage.Record, constraints [][]string) ([]storage.Record, int) {
	if len(constraints) == 0 || len(items) == 0 {
		return items, 0
	}

	seen := make([]map[string]struct{}, len(constraints))
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}

	kept := make([]storage.Record, 0, len(items))
	dropped := 0
	for _, item := range items {
		duplicate := false
		for ci, constraint := range constraints {
			key, ok := ConstraintKey(item, constraint)
			if !ok {
				continue
			}
			if _, exists := seen[ci][key]; exists {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped++
			continue
		}
		for ci, constraint := range constraints {
			if key, ok := ConstraintKey(item, constraint); ok {
				seen[ci][key] = struct{}{}
			}
		}
		kept = append(kept, item)
	}
	return kept, dropped
}

// Classify decides create/update/unchanged for each record. Lookup tries the
// model's unique constraints in declared order and stops at the first one
// fully populated on the record; when that constraint's key matches multiple
// declared constraints against different existing rows, the first declared
// constraint wins. That tie-break is a documented policy, not reconciled
// here.
//
// ignoredFields (tenant/partition keys) extend the built-in ignore set of
// id, createdAt and updatedAt.
func Classify(newRecords []storage.Record, existingByKey map[string]storage.Record, constraints [][]string, ignoredFields []string) Classification {
	var out Classification
	for _, rec := range newRecords {
		existing, found := lookupExisting(rec, existingByKey, constraints)
		if !found {
			out.ToCreate = append(out.ToCreate, rec)
			continue
		}

		patch := ChangedFields(rec, existing, ignoredFields)
		if len(patch) == 0 {
			out.Unchanged++
			continue
		}
		out.ToUpdate = append(out.ToUpdate, ChangeSet{
			ID:            existing["id"],
			ChangedFields: patch,
		})
	}
	return out
}

func lookupExisting(rec storage.Record, existingByKey map[string]storage.Record, constraints [][]string) (storage.Record, bool) {
	for _, constraint := range constraints {
		key, ok := ConstraintKey(rec, constraint)
		if !ok {
			continue
		}
		existing, found := existingByKey[key]
		return existing, found
	}
	return nil, false
}

// ChangedFields computes the minimal patch turning existing into rec. Only
// fields present on rec are compared; values are normalized before compare
// (absent collapse, trimming, canonical serialization for composites).
func ChangedFields(rec, existing storage.Record, ignoredFields []string) storage.Record {
	ignored := ignoreSet(ignoredFields)

	patch := storage.Record{}
	for field, newVal := range rec {
		if _, skip := ignored[field]; skip {
			continue
		}
		oldVal, present := existing[field]
		newNorm := normalizeValue(newVal)
		oldNorm := absentSentinel
		if present {
			oldNorm = normalizeValue(oldVal)
		}
		if newNorm == oldNorm {
			continue
		}
		patch[field] = newVal
	}
	return patch
}

func ignoreSet(extra []string) map[string]struct{} {
	ignored := make(map[string]struct{}, len(alwaysIgnored)+len(extra))
	for _, f := range alwaysIgnored {
		ignored[f] = struct{}{}
	}
	for _, f := range extra {
		if f != "" {
			ignored[f] = struct{}{}
		}
	}
	return ignored
}

// absentSentinel is the single normalized form for nil, missing and
// empty-string values.
const absentSentinel = "\x00absent"

// normalizeValue reduces a field value to a comparable canonical string.
// Strings are trimmed; nil and empty strings collapse to the absent
// sentinel; maps and slices serialize through encoding/json, which orders
// map keys, making the comparison key-order insensitive.
func normalizeValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return absentSentinel
	case string:
		trimmed := strings.TrimSpace(tv)
		if trimmed == "" {
			return absentSentinel
		}
		return "s:" + trimmed
	case bool:
		return fmt.Sprintf("b:%v", tv)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("n:%d", tv)
	case float32:
		return canonicalNumber(float64(tv))
	case float64:
		return canonicalNumber(tv)
	default:
		data, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprintf("v:%v", tv)
		}
		return "j:" + string(data)
	}
}

// canonicalNumber renders integral floats like their int counterparts so
// JSON-decoded numbers compare equal to native ints.
func canonicalNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("n:%d", int64(f))
	}
	return fmt.Sprintf("f:%v", f)
}
