/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package registry

import (
	"sync"

	"github.com/syntrodata/batchstore/errors"
)

// RelationKind distinguishes relation-shaped fields from native array
// columns.
type RelationKind int

const (
	// ScalarArray is a native array-typed column (list of strings, ...).
	// Never treated as a relation despite superficial shape similarity.
	ScalarArray RelationKind = iota

	// SingleRelation is a single-valued reference carried as a foreign
	// key on the owning row.
	SingleRelation

	// ManyRelation is a multi-valued reference with attach/detach
	// semantics through a side table.
	ManyRelation
)

func (k RelationKind) String() string {
	switch k {
	case ScalarArray:
		return "scalarArray"
	case SingleRelation:
		return "singleRelation"
	case ManyRelation:
		return "manyRelation"
	default:
		return "unknown"
	}
}

// RelationDescriptor describes one relation-shaped field of a model.
// Immutable for the duration of one operation.
type RelationDescriptor struct {
	FieldName       string
	Kind            RelationKind
	RelatedTypeName string
}

// FieldDescriptor describes one scalar field of a model.
type FieldDescriptor struct {
	Name    string
	Kind    string
	IsList  bool
	Type    string
	Default any
}

// ModelInfo is the metadata snapshot the batch layer consumes per model.
type ModelInfo struct {
	Name              string
	TableName         string
	TenantKey         string
	Fields            []FieldDescriptor
	UniqueConstraints [][]string
	Relations         []RelationDescriptor

	// IndexMap carries key templates for key-template backends
	// (e.g. "PK": "USER#{ID}").
	IndexMap map[string]string
}

// ManyRelations returns the subset of relations with attach/detach
// semantics.
func (m *ModelInfo) ManyRelations() []RelationDescriptor {
	var out []RelationDescriptor
	for _, r := range m.Relations {
		if r.Kind == ManyRelation {
			out = append(out, r)
		}
	}
	return out
}

// SingleRelations returns the subset of relations carried as foreign keys.
func (m *ModelInfo) SingleRelations() []RelationDescriptor {
	var out []RelationDescriptor
	for _, r := range m.Relations {
		if r.Kind == SingleRelation {
			out = append(out, r)
		}
	}
	return out
}

// Introspector supplies model metadata to the orchestrator. The registry
// below is the default implementation; callers with their own schema source
// can plug in any other.
type Introspector interface {
	GetModelInfo(modelName string) (*ModelInfo, error)
}

var (
	modelRegistry = make(map[string]*ModelInfo)
	mu            sync.RWMutex
)

// RegisterModel associates a model name with its metadata. Re-registering a
// name replaces the previous entry.
func RegisterModel(info *ModelInfo) {
	mu.Lock()
	defer mu.Unlock()
	modelRegistry[info.Name] = info
}

// GetModel retrieves the metadata for modelName, if any.
func GetModel(modelName string) (*ModelInfo, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := modelRegistry[modelName]
	return m, ok
}

// Reset clears all registered models. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	modelRegistry = make(map[string]*ModelInfo)
}

// Default is the registry-backed Introspector.
type Default struct{}

// GetModelInfo implements Introspector against the process-wide registry.
func (Default) GetModelInfo(modelName string) (*ModelInfo, error) {
	info, ok := GetModel(modelName)
	if !ok {
		return nil, errors.ErrNoModelInfo
	}
	return info, nil
}
