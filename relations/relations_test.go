/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package relations

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrodata/batchstore/executor"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
)

var userRelations = []registry.RelationDescriptor{
	{FieldName: "tags", Kind: registry.ScalarArray},
	{FieldName: "team", Kind: registry.SingleRelation, RelatedTypeName: "Team"},
	{FieldName: "groups", Kind: registry.ManyRelation, RelatedTypeName: "Group"},
	{FieldName: "roles", Kind: registry.ManyRelation, RelatedTypeName: "Role"},
}

func TestExtractManyToMany(t *testing.T) {
	t.Run("RawReferenceArray", func(t *testing.T) {
		items := []storage.Record{
			{"email": "a@x.com", "groups": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}},
		}

		res := ExtractManyToMany(items, userRelations)
		require.Len(t, res.CleanedItems, 1)
		assert.NotContains(t, res.CleanedItems[0], "groups")
		assert.Equal(t, "a@x.com", res.CleanedItems[0]["email"])

		require.Contains(t, res.ByIndex, 0)
		assert.Equal(t, []storage.Ref{{ID: 1}, {ID: 2}}, res.ByIndex[0]["groups"])
	})

	t.Run("ConnectWrapper", func(t *testing.T) {
		items := []storage.Record{
			{"email": "a@x.com", "roles": map[string]any{"connect": []any{map[string]any{"id": "r1"}}}},
		}

		res := ExtractManyToMany(items, userRelations)
		assert.NotContains(t, res.CleanedItems[0], "roles")
		assert.Equal(t, []storage.Ref{{ID: "r1"}}, res.ByIndex[0]["roles"])
	})

	t.Run("ScalarArrayNeverExtracted", func(t *testing.T) {
		// values shaped like {id} objects must still pass through when
		// the field is a native array column
		items := []storage.Record{
			{"email": "a@x.com", "tags": []any{map[string]any{"id": 1}}},
		}

		res := ExtractManyToMany(items, userRelations)
		assert.Contains(t, res.CleanedItems[0], "tags")
		assert.NotContains(t, res.ByIndex, 0)
	})

	t.Run("UntouchedItemsShareNoMapEntry", func(t *testing.T) {
		items := []storage.Record{
			{"email": "plain@x.com"},
			{"email": "b@x.com", "groups": []any{map[string]any{"id": 9}}},
		}

		res := ExtractManyToMany(items, userRelations)
		assert.NotContains(t, res.ByIndex, 0)
		assert.Contains(t, res.ByIndex, 1)
		// index alignment preserved
		assert.Equal(t, "plain@x.com", res.CleanedItems[0]["email"])
		assert.Equal(t, "b@x.com", res.CleanedItems[1]["email"])
	})

	t.Run("NonReferenceShapedArrayLeftAlone", func(t *testing.T) {
		items := []storage.Record{
			{"groups": []any{"not-a-ref"}},
		}
		res := ExtractManyToMany(items, userRelations)
		assert.Contains(t, res.CleanedItems[0], "groups")
		assert.NotContains(t, res.ByIndex, 0)
	})
}

func fkTemplate(field string) string { return field + "Id" }

func TestNormalizeToForeignKey(t *testing.T) {
	t.Run("NestedObjectBecomesFK", func(t *testing.T) {
		item := storage.Record{"email": "a@x.com", "team": map[string]any{"id": 42}}

		got := NormalizeToForeignKey(item, userRelations, fkTemplate)
		assert.NotContains(t, got, "team")
		assert.Equal(t, 42, got["teamId"])

		// input map untouched
		assert.Contains(t, item, "team")
	})

	t.Run("RefValue", func(t *testing.T) {
		item := storage.Record{"team": storage.Ref{ID: "t-9"}}
		got := NormalizeToForeignKey(item, userRelations, fkTemplate)
		assert.Equal(t, "t-9", got["teamId"])
	})

	t.Run("ExplicitForeignKeyWins", func(t *testing.T) {
		item := storage.Record{"team": map[string]any{"id": 42}, "teamId": 7}
		got := NormalizeToForeignKey(item, userRelations, fkTemplate)
		assert.Equal(t, 7, got["teamId"])
		assert.NotContains(t, got, "team")
	})

	t.Run("NilRelationLeftAlone", func(t *testing.T) {
		item := storage.Record{"team": nil, "email": "a@x.com"}
		got := NormalizeToForeignKey(item, userRelations, fkTemplate)
		assert.NotContains(t, got, "teamId")
	})
}

func TestApplyManyToMany(t *testing.T) {
	t.Run("OneCombinedCallPerEntity", func(t *testing.T) {
		byIndex := map[int]map[string][]storage.Ref{
			0: {
				"groups": {{ID: 1}, {ID: nil}, {ID: 2}},
				"roles":  {{ID: "r1"}},
			},
			2: {
				"groups": {{ID: 3}},
			},
		}
		entityIDs := []any{"e0", "e1", "e2"}

		calls := map[any]map[string][]storage.Ref{}
		attach := func(ctx context.Context, id any, rels map[string][]storage.Ref) error {
			calls[id] = rels
			return nil
		}

		res, err := ApplyManyToMany(context.Background(), entityIDs, byIndex, attach, executor.Options{Concurrency: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Succeeded)
		assert.Zero(t, res.Failed)

		require.Len(t, calls, 2)
		// nil-id reference filtered, both fields merged into one call
		assert.Equal(t, []storage.Ref{{ID: 1}, {ID: 2}}, calls["e0"]["groups"])
		assert.Equal(t, []storage.Ref{{ID: "r1"}}, calls["e0"]["roles"])
		assert.Equal(t, []storage.Ref{{ID: 3}}, calls["e2"]["groups"])
	})

	t.Run("FailuresCountedNotFatal", func(t *testing.T) {
		byIndex := map[int]map[string][]storage.Ref{
			0: {"groups": {{ID: 1}}},
			1: {"groups": {{ID: 2}}},
		}
		attach := func(ctx context.Context, id any, rels map[string][]storage.Ref) error {
			if id == "e0" {
				return fmt.Errorf("attach failed")
			}
			return nil
		}

		res, err := ApplyManyToMany(context.Background(), []any{"e0", "e1"}, byIndex, attach, executor.Options{Concurrency: 4})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Succeeded)
		assert.Equal(t, 1, res.Failed)
	})

	t.Run("AllNilRefsSkipsCall", func(t *testing.T) {
		byIndex := map[int]map[string][]storage.Ref{
			0: {"groups": {{ID: nil}}},
		}
		attach := func(ctx context.Context, id any, rels map[string][]storage.Ref) error {
			t.Fatal("attach should not be called")
			return nil
		}

		res, err := ApplyManyToMany(context.Background(), []any{"e0"}, byIndex, attach, executor.Options{Concurrency: 1})
		require.NoError(t, err)
		assert.Zero(t, res.Succeeded)
		assert.Zero(t, res.Failed)
	})
}
