/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package memstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/storage"
)

func TestCreateAssignsIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("Numeric", func(t *testing.T) {
		s := New()
		first, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com"})
		require.NoError(t, err)
		second, err := s.Create(ctx, "User", storage.Record{"email": "b@x.com"})
		require.NoError(t, err)

		assert.Equal(t, 1, first["id"])
		assert.Equal(t, 2, second["id"])
	})

	t.Run("OpaqueString", func(t *testing.T) {
		s := New().WithCapabilities(storage.Capabilities{Provider: "memory", IDKind: storage.IDOpaqueString})
		rec, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com"})
		require.NoError(t, err)

		id, ok := rec["id"].(string)
		require.True(t, ok)
		assert.NotEmpty(t, id)
	})

	t.Run("CallerIDKept", func(t *testing.T) {
		s := New()
		rec, err := s.Create(ctx, "User", storage.Record{"id": 99, "email": "a@x.com"})
		require.NoError(t, err)
		assert.Equal(t, 99, rec["id"])
	})
}

func TestCreateManyUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	constraints := [][]string{{"email"}}

	t.Run("CollisionFailsWholeBatch", func(t *testing.T) {
		s := New().WithUniqueConstraints("User", constraints)
		_, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com"})
		require.NoError(t, err)

		n, err := s.CreateMany(ctx, "User", []storage.Record{
			{"email": "b@x.com"},
			{"email": "a@x.com"},
		}, storage.CreateManyOptions{})
		require.Error(t, err)
		assert.True(t, errors.IsUniqueViolation(err))
		assert.Zero(t, n)
		// nothing inserted, including the non-colliding record
		assert.Equal(t, 1, s.Count("User"))
	})

	t.Run("IntraBatchCollision", func(t *testing.T) {
		s := New().WithUniqueConstraints("User", constraints)
		_, err := s.CreateMany(ctx, "User", []storage.Record{
			{"email": "a@x.com"},
			{"email": "a@x.com"},
		}, storage.CreateManyOptions{})
		assert.True(t, errors.IsUniqueViolation(err))
		assert.Zero(t, s.Count("User"))
	})

	t.Run("SkipDuplicates", func(t *testing.T) {
		s := New().WithUniqueConstraints("User", constraints)
		_, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com"})
		require.NoError(t, err)

		n, err := s.CreateMany(ctx, "User", []storage.Record{
			{"email": "b@x.com"},
			{"email": "a@x.com"},
			{"email": "c@x.com"},
		}, storage.CreateManyOptions{SkipDuplicates: true})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 3, s.Count("User"))
	})

	t.Run("CompositeConstraint", func(t *testing.T) {
		s := New().WithUniqueConstraints("Member", [][]string{{"orgId", "userId"}})
		_, err := s.Create(ctx, "Member", storage.Record{"orgId": 1, "userId": 2})
		require.NoError(t, err)

		_, err = s.Create(ctx, "Member", storage.Record{"orgId": 1, "userId": 2})
		assert.True(t, errors.IsUniqueViolation(err))

		// same userId under another org is fine
		_, err = s.Create(ctx, "Member", storage.Record{"orgId": 3, "userId": 2})
		assert.NoError(t, err)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com", "age": 30})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "User", created["id"], storage.Record{"age": 31}))

	recs := s.Records("User")
	require.Len(t, recs, 1)
	assert.Equal(t, 31, recs[0]["age"])
	assert.Equal(t, "a@x.com", recs[0]["email"])

	err = s.Update(ctx, "User", 999, storage.Record{"age": 1})
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		_, err := s.Create(ctx, "User", storage.Record{"email": email})
		require.NoError(t, err)
	}

	n, err := s.DeleteMany(ctx, "User", "email", []any{"a@x.com", "c@x.com", "missing@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Count("User"))
}

func TestFindMany(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com", "org": "acme"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "User", storage.Record{"email": "b@x.com", "org": "acme"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "User", storage.Record{"email": "c@x.com", "org": "other"})
	require.NoError(t, err)

	t.Run("OrBranches", func(t *testing.T) {
		got, err := s.FindMany(ctx, "User", storage.Filter{Or: []map[string]any{
			{"email": "a@x.com"},
			{"email": "c@x.com"},
		}})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("BranchRequiresAllFields", func(t *testing.T) {
		got, err := s.FindMany(ctx, "User", storage.Filter{Or: []map[string]any{
			{"email": "a@x.com", "org": "other"},
		}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("InFilter", func(t *testing.T) {
		got, err := s.FindMany(ctx, "User", storage.Filter{In: &storage.InFilter{
			Field:  "org",
			Values: []any{"acme"},
		}})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("ResultsAreCopies", func(t *testing.T) {
		got, err := s.FindMany(ctx, "User", storage.Filter{Or: []map[string]any{{"email": "a@x.com"}}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		got[0]["email"] = "mutated"

		again, err := s.FindMany(ctx, "User", storage.Filter{Or: []map[string]any{{"email": "a@x.com"}}})
		require.NoError(t, err)
		assert.Len(t, again, 1)
	})
}

func TestRunTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, "User", storage.Record{"email": "a@x.com"})
	require.NoError(t, err)

	err = s.RunTransaction(ctx, []func(ctx context.Context) error{
		func(ctx context.Context) error {
			_, err := s.Create(ctx, "User", storage.Record{"email": "b@x.com"})
			return err
		},
		func(ctx context.Context) error {
			return fmt.Errorf("boom")
		},
	}, storage.TxOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, s.Count("User"))
}

func TestAttachRelationsMerges(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.AttachRelations(ctx, "User", 1, map[string][]storage.Ref{
		"groups": {{ID: 10}},
	}))
	require.NoError(t, s.AttachRelations(ctx, "User", 1, map[string][]storage.Ref{
		"groups": {{ID: 11}},
		"roles":  {{ID: "r1"}},
	}))

	got := s.Attachments("User", 1)
	assert.Equal(t, []storage.Ref{{ID: 10}, {ID: 11}}, got["groups"])
	assert.Equal(t, []storage.Ref{{ID: "r1"}}, got["roles"])
}

func TestErrorInjection(t *testing.T) {
	ctx := context.Background()
	boom := fmt.Errorf("injected")

	s := New().
		WithCreateError(boom).
		WithUpdateError(boom).
		WithDeleteError(boom).
		WithFindError(boom).
		WithAttachError(boom)

	_, err := s.Create(ctx, "User", storage.Record{})
	assert.ErrorIs(t, err, boom)
	_, err = s.CreateMany(ctx, "User", nil, storage.CreateManyOptions{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Update(ctx, "User", 1, storage.Record{}), boom)
	_, err = s.DeleteMany(ctx, "User", "id", nil)
	assert.ErrorIs(t, err, boom)
	_, err = s.FindMany(ctx, "User", storage.Filter{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.AttachRelations(ctx, "User", 1, nil), boom)
}

func TestRawExec(t *testing.T) {
	ctx := context.Background()

	s := New()
	_, err := s.ExecuteRawStatement(ctx, "UPDATE x")
	assert.Error(t, err)

	var seen string
	s.WithRawExec(func(stmt string) (int, error) {
		seen = stmt
		return 3, nil
	})
	n, err := s.ExecuteRawStatement(ctx, "UPDATE x")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "UPDATE x", seen)
}
