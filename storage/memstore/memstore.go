/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

// Package memstore provides an in-memory implementation of storage.Client
// with unique-constraint enforcement, used in tests and as an embedded
// backend.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/storage"
)

// Store is an in-memory storage.Client. Zero-value is not usable; construct
// with New.
type Store struct {
	mu          sync.RWMutex
	data        map[string][]storage.Record
	nextID      map[string]int
	constraints map[string][][]string
	attachments map[string]map[string]map[string][]storage.Ref

	caps storage.Capabilities

	createErr error
	updateErr error
	deleteErr error
	findErr   error
	attachErr error

	rawExec func(statement string) (int, error)
}

// New creates an empty Store with the default memory capability snapshot.
func New() *Store {
	return &Store{
		data:        make(map[string][]storage.Record),
		nextID:      make(map[string]int),
		constraints: make(map[string][][]string),
		attachments: make(map[string]map[string]map[string][]storage.Ref),
		caps: storage.Capabilities{
			Provider:               "memory",
			SupportsSkipDuplicates: true,
			MaxPlaceholders:        10000,
			IDKind:                 storage.IDNumeric,
			RecommendedConcurrency: 4,
			SupportsParallelWrites: true,
			TransactionBatchSize:   1000,
		},
	}
}

// WithUniqueConstraints declares the unique constraints enforced for model.
func (s *Store) WithUniqueConstraints(model string, constraints [][]string) *Store {
	s.constraints[model] = constraints
	return s
}

// WithCapabilities overrides the capability snapshot
func (s *Store) WithCapabilities(caps storage.Capabilities) *Store {
	s.caps = caps
	return s
}

// WithCreateError makes create operations return an error
func (s *Store) WithCreateError(err error) *Store {
	s.createErr = err
	return s
}

// WithUpdateError makes Update operations return an error
func (s *Store) WithUpdateError(err error) *Store {
	s.updateErr = err
	return s
}

// WithDeleteError makes DeleteMany operations return an error
func (s *Store) WithDeleteError(err error) *Store {
	s.deleteErr = err
	return s
}

// WithFindError makes FindMany operations return an error
func (s *Store) WithFindError(err error) *Store {
	s.findErr = err
	return s
}

// WithAttachError makes AttachRelations operations return an error
func (s *Store) WithAttachError(err error) *Store {
	s.attachErr = err
	return s
}

// WithRawExec installs the handler backing ExecuteRawStatement.
func (s *Store) WithRawExec(f func(statement string) (int, error)) *Store {
	s.rawExec = f
	return s
}

// Capabilities returns the store's capability snapshot.
func (s *Store) Capabilities() storage.Capabilities {
	return s.caps
}

// Create inserts one record, assigning an id when absent.
func (s *Store) Create(ctx context.Context, model string, rec storage.Record) (storage.Record, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(model, rec)
}

// CreateMany inserts a batch. Without SkipDuplicates a unique-constraint
// collision fails the whole batch with nothing inserted, matching the
// all-or-nothing behavior of native bulk inserts; with SkipDuplicates the
// colliding records are dropped and the rest inserted.
func (s *Store) CreateMany(ctx context.Context, model string, recs []storage.Record, opts storage.CreateManyOptions) (int, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !opts.SkipDuplicates {
		staged := make([]storage.Record, 0, len(recs))
		for _, rec := range recs {
			if constraint := s.violatedConstraintLocked(model, rec, staged); constraint != nil {
				return 0, errors.NewUniqueViolationError(model, constraint,
					fmt.Errorf("duplicate key value violates unique constraint"))
			}
			staged = append(staged, rec)
		}
		for _, rec := range staged {
			if _, err := s.insertLocked(model, rec); err != nil {
				return 0, err
			}
		}
		return len(staged), nil
	}

	inserted := 0
	for _, rec := range recs {
		if s.violatedConstraintLocked(model, rec, nil) != nil {
			continue
		}
		if _, err := s.insertLocked(model, rec); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// Update merges patch into the record addressed by id.
func (s *Store) Update(ctx context.Context, model string, id any, patch storage.Record) error {
	if s.updateErr != nil {
		return s.updateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.data[model] {
		if valueEqual(rec["id"], id) {
			for k, v := range patch {
				rec[k] = v
			}
			return nil
		}
	}
	return errors.NewNotFoundError(model, fmt.Sprintf("%v", id))
}

// DeleteMany removes records whose keyField is in keys.
func (s *Store) DeleteMany(ctx context.Context, model string, keyField string, keys []any) (int, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[model][:0]
	deleted := 0
	for _, rec := range s.data[model] {
		matched := false
		for _, key := range keys {
			if valueEqual(rec[keyField], key) {
				matched = true
				break
			}
		}
		if matched {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.data[model] = kept
	return deleted, nil
}

// FindMany returns records matching filter.
func (s *Store) FindMany(ctx context.Context, model string, filter storage.Filter) ([]storage.Record, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Record
	for _, rec := range s.data[model] {
		if matchesFilter(rec, filter) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

// ExecuteRawStatement delegates to the installed handler. The in-memory
// store has no SQL engine of its own.
func (s *Store) ExecuteRawStatement(ctx context.Context, statement string) (int, error) {
	if s.rawExec == nil {
		return 0, fmt.Errorf("memstore: raw statements not supported")
	}
	return s.rawExec(statement)
}

// RunTransaction executes ops in order, restoring the pre-transaction
// snapshot when any op fails.
func (s *Store) RunTransaction(ctx context.Context, ops []func(ctx context.Context) error, opts storage.TxOptions) error {
	snapshot := s.snapshot()
	for _, op := range ops {
		if err := op(ctx); err != nil {
			s.restore(snapshot)
			return err
		}
	}
	return nil
}

// AttachRelations records the merged relation attachments for an entity.
func (s *Store) AttachRelations(ctx context.Context, model string, id any, relations map[string][]storage.Ref) error {
	if s.attachErr != nil {
		return s.attachErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%v", id)
	if s.attachments[model] == nil {
		s.attachments[model] = make(map[string]map[string][]storage.Ref)
	}
	if s.attachments[model][key] == nil {
		s.attachments[model][key] = make(map[string][]storage.Ref)
	}
	for field, refs := range relations {
		s.attachments[model][key][field] = append(s.attachments[model][key][field], refs...)
	}
	return nil
}

// Helper methods for tests

// Records returns a copy of all records stored for model.
func (s *Store) Records(model string) []storage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Record, 0, len(s.data[model]))
	for _, rec := range s.data[model] {
		out = append(out, copyRecord(rec))
	}
	return out
}

// Count returns the number of stored records for model.
func (s *Store) Count(model string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[model])
}

// Attachments returns the recorded relation attachments for an entity id.
func (s *Store) Attachments(model string, id any) map[string][]storage.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attachments[model][fmt.Sprintf("%v", id)]
}

// Clear removes all data
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]storage.Record)
	s.attachments = make(map[string]map[string]map[string][]storage.Ref)
	s.nextID = make(map[string]int)
}

func (s *Store) insertLocked(model string, rec storage.Record) (storage.Record, error) {
	if constraint := s.violatedConstraintLocked(model, rec, nil); constraint != nil {
		return nil, errors.NewUniqueViolationError(model, constraint,
			fmt.Errorf("duplicate key value violates unique constraint"))
	}

	stored := copyRecord(rec)
	if stored["id"] == nil {
		if s.caps.IDKind == storage.IDOpaqueString {
			stored["id"] = uuid.NewString()
		} else {
			s.nextID[model]++
			stored["id"] = s.nextID[model]
		}
	}
	s.data[model] = append(s.data[model], stored)
	return copyRecord(stored), nil
}

// violatedConstraintLocked returns the first unique constraint rec collides
// with, checking stored records plus the staged batch prefix.
func (s *Store) violatedConstraintLocked(model string, rec storage.Record, staged []storage.Record) []string {
	for _, constraint := range s.constraints[model] {
		key, ok := constraintKey(rec, constraint)
		if !ok {
			continue
		}
		for _, existing := range s.data[model] {
			if existingKey, ok := constraintKey(existing, constraint); ok && existingKey == key {
				return constraint
			}
		}
		for _, pending := range staged {
			if pendingKey, ok := constraintKey(pending, constraint); ok && pendingKey == key {
				return constraint
			}
		}
	}
	return nil
}

func constraintKey(rec storage.Record, constraint []string) (string, bool) {
	parts := make([]string, 0, len(constraint))
	for _, field := range constraint {
		v, ok := rec[field]
		if !ok || v == nil {
			return "", false
		}
		sv := fmt.Sprintf("%v", v)
		if strings.TrimSpace(sv) == "" {
			return "", false
		}
		parts = append(parts, field+"="+sv)
	}
	return strings.Join(parts, "|"), true
}

func (s *Store) snapshot() map[string][]storage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string][]storage.Record, len(s.data))
	for model, recs := range s.data {
		cp := make([]storage.Record, len(recs))
		for i, rec := range recs {
			cp[i] = copyRecord(rec)
		}
		snap[model] = cp
	}
	return snap
}

func (s *Store) restore(snap map[string][]storage.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snap
}

func matchesFilter(rec storage.Record, filter storage.Filter) bool {
	if filter.In != nil {
		for _, v := range filter.In.Values {
			if valueEqual(rec[filter.In.Field], v) {
				return true
			}
		}
		return false
	}
	if len(filter.Or) == 0 {
		return true
	}
	for _, branch := range filter.Or {
		matched := true
		for field, want := range branch {
			if !valueEqual(rec[field], want) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// valueEqual compares loosely across numeric types the way JSON round
// trips produce them.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func copyRecord(rec storage.Record) storage.Record {
	cp := make(storage.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}
