/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"testing"
)

func userModel(name string) *ModelInfo {
	return &ModelInfo{
		Name:      name,
		TableName: "users",
		Fields: []FieldDescriptor{
			{Name: "id", Kind: "scalar", Type: "Int"},
			{Name: "email", Kind: "scalar", Type: "String"},
		},
		UniqueConstraints: [][]string{{"email"}},
		Relations: []RelationDescriptor{
			{FieldName: "tags", Kind: ScalarArray, RelatedTypeName: ""},
			{FieldName: "team", Kind: SingleRelation, RelatedTypeName: "Team"},
			{FieldName: "groups", Kind: ManyRelation, RelatedTypeName: "Group"},
		},
	}
}

func TestRegisterAndGetModel(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	RegisterModel(userModel("User"))

	info, ok := GetModel("User")
	if !ok {
		t.Fatal("expected User model to be registered")
	}
	if info.TableName != "users" {
		t.Errorf("expected table users, got %q", info.TableName)
	}

	if _, ok := GetModel("Ghost"); ok {
		t.Error("expected Ghost model to be absent")
	}
}

func TestRelationSubsets(t *testing.T) {
	info := userModel("User")

	many := info.ManyRelations()
	if len(many) != 1 || many[0].FieldName != "groups" {
		t.Errorf("expected [groups], got %v", many)
	}

	single := info.SingleRelations()
	if len(single) != 1 || single[0].FieldName != "team" {
		t.Errorf("expected [team], got %v", single)
	}
}

func TestDefaultIntrospector(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	RegisterModel(userModel("User"))

	var intro Introspector = Default{}
	info, err := intro.GetModelInfo("User")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name != "User" {
		t.Errorf("expected User, got %q", info.Name)
	}

	if _, err := intro.GetModelInfo("Ghost"); err == nil {
		t.Error("expected error for unregistered model")
	}
}

func TestConcurrentAccess(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	done := make(chan bool)

	// Concurrent writes
	for i := 0; i < 10; i++ {
		go func(id int) {
			RegisterModel(userModel(fmt.Sprintf("Model%d", id)))
			done <- true
		}(i)
	}

	// Concurrent reads
	for i := 0; i < 10; i++ {
		go func(id int) {
			GetModel(fmt.Sprintf("Model%d", id))
			done <- true
		}(i)
	}

	// Wait for completion
	for i := 0; i < 20; i++ {
		<-done
	}

	for i := 0; i < 10; i++ {
		if _, ok := GetModel(fmt.Sprintf("Model%d", i)); !ok {
			t.Errorf("expected Model%d to be registered", i)
		}
	}
}
