// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package temporal stages edits against the Interface Signature Graph
// without mutating current state: StageCreate, StageEdit, and StageDelete
// flip an entity's (current_ind, future_ind, future_action) triple and
// record the pending code, leaving CurrentCode untouched until apply.
package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

// StageError is returned by Stage* operations for conditions the caller
// should branch on, as opposed to a bare storage failure.
type StageError struct {
	Op   string
	Key  string
	Kind string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s %s: %s", e.Op, e.Key, e.Kind)
}

var (
	// ErrAlreadyExists is returned by StageCreate when an entity with the
	// same key is already current or already staged.
	ErrAlreadyExists = "already_exists"
	// ErrNotFound is returned by StageEdit/StageDelete when the target
	// entity does not exist.
	ErrNotFound = "not_found"
	// ErrHasDependents is returned by StageDelete when live edges still
	// reference the entity being deleted.
	ErrHasDependents = "has_dependents"
	// ErrConcurrentModification is returned when the caller's view of
	// last_modified is stale: someone else staged or applied a change to
	// this entity first.
	ErrConcurrentModification = "concurrent_modification"
)

// Stager applies staging operations against a storage.Backend.
type Stager struct {
	backend storage.Backend
}

// NewStager wraps a backend for staging operations.
func NewStager(backend storage.Backend) *Stager {
	return &Stager{backend: backend}
}

// CreateInput describes a new entity to stage.
type CreateInput struct {
	Entity isg.Entity
	Code   string
}

// StageCreate stages a brand-new entity: current_ind=false, future_ind=true,
// future_action=Create. The key must not already exist, current or staged.
func (s *Stager) StageCreate(ctx context.Context, in CreateInput) (*isg.Entity, error) {
	existing, err := s.backend.GetEntity(ctx, in.Entity.Key)
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, &StageError{Op: "create", Key: in.Entity.Key, Kind: ErrAlreadyExists}
	}

	e := in.Entity.Clone()
	e.CurrentInd = false
	e.FutureInd = true
	action := isg.ActionCreate
	e.FutureAction = &action
	e.CurrentCode = nil
	code := in.Code
	e.FutureCode = &code
	e.LastModified = now()

	if !isg.IsLegalTriple(e.CurrentInd, e.FutureInd, e.FutureAction) {
		return nil, &isg.ErrIllegalTriple{Current: e.CurrentInd, Future: e.FutureInd, Action: e.FutureAction}
	}

	if err := s.backend.UpsertEntities(ctx, []isg.Entity{e}); err != nil {
		return nil, err
	}
	return &e, nil
}

// EditInput describes a staged modification to an existing entity.
type EditInput struct {
	Key              string
	Code             string
	ExpectedModified time.Time // zero value skips the conflict check
}

// StageEdit stages a modification to an existing, currently-live entity:
// future_ind=true, future_action=Edit, current fields untouched.
func (s *Stager) StageEdit(ctx context.Context, in EditInput) (*isg.Entity, error) {
	existing, err := s.backend.GetEntity(ctx, in.Key)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, &StageError{Op: "edit", Key: in.Key, Kind: ErrNotFound}
		}
		return nil, err
	}

	if !in.ExpectedModified.IsZero() && !existing.LastModified.Equal(in.ExpectedModified) {
		return nil, &StageError{Op: "edit", Key: in.Key, Kind: ErrConcurrentModification}
	}

	e := existing.Clone()
	e.FutureInd = true
	action := isg.ActionEdit
	e.FutureAction = &action
	code := in.Code
	e.FutureCode = &code
	e.LastModified = now()

	if !isg.IsLegalTriple(e.CurrentInd, e.FutureInd, e.FutureAction) {
		return nil, &isg.ErrIllegalTriple{Current: e.CurrentInd, Future: e.FutureInd, Action: e.FutureAction}
	}

	if err := s.backend.UpsertEntities(ctx, []isg.Entity{e}); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteInput describes a staged deletion.
type DeleteInput struct {
	Key              string
	ExpectedModified time.Time
	Force            bool // bypass the live-dependents check
}

// StageDelete stages a deletion: future_ind=false, future_action=Delete.
// Refuses (unless Force) when a live edge still points at this entity, so
// a dangling reference is never silently created.
func (s *Stager) StageDelete(ctx context.Context, in DeleteInput) (*isg.Entity, error) {
	existing, err := s.backend.GetEntity(ctx, in.Key)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, &StageError{Op: "delete", Key: in.Key, Kind: ErrNotFound}
		}
		return nil, err
	}

	if !in.ExpectedModified.IsZero() && !existing.LastModified.Equal(in.ExpectedModified) {
		return nil, &StageError{Op: "delete", Key: in.Key, Kind: ErrConcurrentModification}
	}

	if !in.Force {
		hasDependents, err := s.hasLiveDependents(ctx, in.Key)
		if err != nil {
			return nil, err
		}
		if hasDependents {
			return nil, &StageError{Op: "delete", Key: in.Key, Kind: ErrHasDependents}
		}
	}

	e := existing.Clone()
	e.FutureInd = false
	action := isg.ActionDelete
	e.FutureAction = &action
	e.FutureCode = nil
	e.LastModified = now()

	if !isg.IsLegalTriple(e.CurrentInd, e.FutureInd, e.FutureAction) {
		return nil, &isg.ErrIllegalTriple{Current: e.CurrentInd, Future: e.FutureInd, Action: e.FutureAction}
	}

	if err := s.backend.UpsertEntities(ctx, []isg.Entity{e}); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Stager) hasLiveDependents(ctx context.Context, key string) (bool, error) {
	script := fmt.Sprintf(`
?[from_key] := *isg_edge{from_key, to_key, edge_type}, to_key = %q
:limit 1
`, key)
	res, err := s.backend.Query(ctx, script)
	if err != nil {
		return false, fmt.Errorf("check dependents: %w", err)
	}
	return len(res.Rows) > 0, nil
}

// now is a var so tests can override it deterministically.
var now = time.Now
