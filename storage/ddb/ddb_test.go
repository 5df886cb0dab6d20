/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package ddb

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
)

func TestExpandMacros(t *testing.T) {
	indexMap := map[string]string{
		"PK": "USER#{id}",
		"SK": "ORG#{orgId}#USER#{id}",
	}

	expanded, err := expandMacros(indexMap, storage.Record{"id": "u1", "orgId": 42})
	if err != nil {
		t.Fatalf("expandMacros failed: %v", err)
	}
	if expanded["PK"] != "USER#u1" {
		t.Errorf("expected PK USER#u1, got %q", expanded["PK"])
	}
	if expanded["SK"] != "ORG#42#USER#u1" {
		t.Errorf("expected SK ORG#42#USER#u1, got %q", expanded["SK"])
	}

	t.Run("MissingFieldExpandsEmpty", func(t *testing.T) {
		expanded, err := expandMacros(indexMap, storage.Record{"id": "u1"})
		if err != nil {
			t.Fatalf("expandMacros failed: %v", err)
		}
		if expanded["SK"] != "ORG##USER#u1" {
			t.Errorf("expected empty macro expansion, got %q", expanded["SK"])
		}
	})

	t.Run("EmptyIndexMapFails", func(t *testing.T) {
		if _, err := expandMacros(nil, storage.Record{"id": "u1"}); err == nil {
			t.Error("expected error for empty index map")
		}
	})
}

func TestKeyForID(t *testing.T) {
	s := New(nil, "test-table", registry.Default{})
	info := &registry.ModelInfo{
		Name: "User",
		IndexMap: map[string]string{
			"PK": "USER#{id}",
			"SK": "USER#{id}",
		},
	}

	key, err := s.keyForID(info, "u1")
	if err != nil {
		t.Fatalf("keyForID failed: %v", err)
	}
	pk, ok := key["PK"].(*types.AttributeValueMemberS)
	if !ok || pk.Value != "USER#u1" {
		t.Errorf("unexpected PK: %#v", key["PK"])
	}

	t.Run("NilIDFails", func(t *testing.T) {
		if _, err := s.keyForID(info, nil); err == nil {
			t.Error("expected error for nil id")
		}
	})
}

func TestBuildUpdateExpression(t *testing.T) {
	expr, names, values, err := buildUpdateExpression(storage.Record{"age": 30})
	if err != nil {
		t.Fatalf("buildUpdateExpression failed: %v", err)
	}
	if expr != "SET #f0 = :v0" {
		t.Errorf("unexpected expression: %q", expr)
	}
	if names["#f0"] != "age" {
		t.Errorf("unexpected name mapping: %v", names)
	}
	n, ok := values[":v0"].(*types.AttributeValueMemberN)
	if !ok || n.Value != "30" {
		t.Errorf("unexpected value: %#v", values[":v0"])
	}

	t.Run("EmptyPatchFails", func(t *testing.T) {
		_, _, _, err := buildUpdateExpression(storage.Record{})
		if !errors.IsInvalidArgument(err) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})

	t.Run("MultiFieldCoversAll", func(t *testing.T) {
		_, names, values, err := buildUpdateExpression(storage.Record{"a": "x", "b": true, "c": nil})
		if err != nil {
			t.Fatalf("buildUpdateExpression failed: %v", err)
		}
		if len(names) != 3 || len(values) != 3 {
			t.Errorf("expected 3 placeholders, got %d names %d values", len(names), len(values))
		}
	})
}

func TestBuildFilterExpression(t *testing.T) {
	t.Run("OrBranches", func(t *testing.T) {
		expr, names, values := buildFilterExpression(storage.Filter{Or: []map[string]any{
			{"email": "a@x.com"},
			{"email": "b@x.com"},
		}})
		if expr != "(#n0 = :w0) OR (#n0 = :w1)" {
			t.Errorf("unexpected expression: %q", expr)
		}
		if names["#n0"] != "email" {
			t.Errorf("unexpected names: %v", names)
		}
		if len(values) != 2 {
			t.Errorf("expected 2 values, got %d", len(values))
		}
	})

	t.Run("InFilter", func(t *testing.T) {
		expr, names, values := buildFilterExpression(storage.Filter{In: &storage.InFilter{
			Field:  "id",
			Values: []any{"a", "b", "c"},
		}})
		if expr != "#in0 IN (:in0, :in1, :in2)" {
			t.Errorf("unexpected expression: %q", expr)
		}
		if names["#in0"] != "id" {
			t.Errorf("unexpected names: %v", names)
		}
		if len(values) != 3 {
			t.Errorf("expected 3 values, got %d", len(values))
		}
	})

	t.Run("EmptyFilter", func(t *testing.T) {
		expr, _, _ := buildFilterExpression(storage.Filter{})
		if expr != "" {
			t.Errorf("expected empty expression, got %q", expr)
		}
	})
}

func TestCapabilities(t *testing.T) {
	caps := New(nil, "t", nil).Capabilities()
	if caps.Provider != "dynamodb" {
		t.Errorf("unexpected provider %q", caps.Provider)
	}
	if caps.SupportsSkipDuplicates {
		t.Error("dynamodb must not report skip-duplicates support")
	}
	if caps.IDKind != storage.IDOpaqueString {
		t.Error("dynamodb ids are opaque strings")
	}
	if caps.TransactionBatchSize != 100 {
		t.Errorf("unexpected transaction batch size %d", caps.TransactionBatchSize)
	}
}
