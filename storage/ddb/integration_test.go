//go:build integration
// +build integration

/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package ddb_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
	"github.com/syntrodata/batchstore/storage/ddb"
	"github.com/syntrodata/batchstore/storage/testmodels"
)

func init() {
	// .env at the repo root carries local AWS credentials; absence is fine
	// in CI where the environment is set directly.
	_ = godotenv.Load("../../.env")
	registry.RegisterModel(testmodels.AccountModelInfo())
}

func setupStore(t *testing.T) *ddb.Store {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	region := os.Getenv("AWS_REGION")
	tableName := os.Getenv("DDB_TEST_TABLE_NAME")

	if tableName == "" {
		t.Skip("DDB_TEST_TABLE_NAME not set, skipping integration test")
	}

	store, err := ddb.NewFromCredentials(accessKey, secretKey, region, tableName)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestIntegrationCreateGetDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("it-%d", time.Now().UnixNano())
	rec := testmodels.NewAccountRecord(id, id+"@example.com", "Integration")

	created, err := store.Create(ctx, "Account", rec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created["id"] != id {
		t.Errorf("expected id %q, got %v", id, created["id"])
	}

	// duplicate create must surface as a unique violation
	_, err = store.Create(ctx, "Account", rec)
	if !errors.IsUniqueViolation(err) {
		t.Errorf("expected unique violation on duplicate create, got %v", err)
	}

	found, err := store.FindMany(ctx, "Account", storage.Filter{Or: []map[string]any{
		{"id": id},
	}})
	if err != nil {
		t.Fatalf("FindMany failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 record, got %d", len(found))
	}
	if found[0]["email"] != id+"@example.com" {
		t.Errorf("unexpected email %v", found[0]["email"])
	}

	n, err := store.DeleteMany(ctx, "Account", "id", []any{id})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}

func TestIntegrationBatchRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("batch-%d", time.Now().UnixNano())
	recs := make([]storage.Record, 0, 30)
	ids := make([]any, 0, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("%s-%d", prefix, i)
		recs = append(recs, testmodels.NewAccountRecord(id, id+"@example.com", "Batch"))
		ids = append(ids, id)
	}

	// spans two BatchWriteItem chunks
	n, err := store.CreateMany(ctx, "Account", recs, storage.CreateManyOptions{})
	if err != nil {
		t.Fatalf("CreateMany failed: %v", err)
	}
	if n != 30 {
		t.Errorf("expected 30 created, got %d", n)
	}

	defer func() {
		if _, err := store.DeleteMany(ctx, "Account", "id", ids); err != nil {
			t.Errorf("cleanup failed: %v", err)
		}
	}()

	if err := store.Update(ctx, "Account", ids[0], storage.Record{"name": "Renamed"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = store.Update(ctx, "Account", prefix+"-missing", storage.Record{"name": "x"})
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found updating missing record, got %v", err)
	}
}

func TestIntegrationAttachRelations(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("rel-%d", time.Now().UnixNano())
	if _, err := store.Create(ctx, "Account", testmodels.NewAccountRecord(id, id+"@example.com", "Rel")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer store.DeleteMany(ctx, "Account", "id", []any{id})

	err := store.AttachRelations(ctx, "Account", id, map[string][]storage.Ref{
		"groups": {{ID: "g1"}, {ID: "g2"}},
		"roles":  {{ID: "admin"}},
	})
	if err != nil {
		t.Fatalf("AttachRelations failed: %v", err)
	}

	found, err := store.FindMany(ctx, "Account", storage.Filter{Or: []map[string]any{{"id": id}}})
	if err != nil {
		t.Fatalf("FindMany failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 record, got %d", len(found))
	}
	groups, ok := found[0]["groups"].([]any)
	if !ok || len(groups) != 2 {
		t.Errorf("expected 2 attached groups, got %v", found[0]["groups"])
	}
}
