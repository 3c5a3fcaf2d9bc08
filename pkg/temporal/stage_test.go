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

package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

// fakeBackend is an in-memory storage.Backend used only to exercise
// staging logic without an embedded Datalog engine.
type fakeBackend struct {
	entities map[string]isg.Entity
	edges    []isg.Edge
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entities: make(map[string]isg.Entity)}
}

func (b *fakeBackend) Query(ctx context.Context, datalog string) (*storage.QueryResult, error) {
	var rows [][]any
	for _, e := range b.edges {
		rows = append(rows, []any{e.FromKey, e.ToKey})
	}
	_ = rows
	// hasLiveDependents only cares whether any row comes back for the
	// given to_key; simulate that by scanning edges directly.
	return &storage.QueryResult{Rows: b.matchingEdgeRows(datalog)}, nil
}

func (b *fakeBackend) matchingEdgeRows(datalog string) [][]any {
	var rows [][]any
	for _, e := range b.edges {
		if containsKey(datalog, e.ToKey) {
			rows = append(rows, []any{e.FromKey})
		}
	}
	return rows
}

func containsKey(script, key string) bool {
	return len(key) > 0 && (indexOf(script, key) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (b *fakeBackend) Execute(ctx context.Context, datalog string) error { return nil }

func (b *fakeBackend) UpsertEntities(ctx context.Context, entities []isg.Entity) error {
	for _, e := range entities {
		b.entities[e.Key] = e
	}
	return nil
}

func (b *fakeBackend) UpsertEdges(ctx context.Context, edges []isg.Edge) error {
	b.edges = append(b.edges, edges...)
	return nil
}

func (b *fakeBackend) UpsertEmbeddings(ctx context.Context, rows []storage.EmbeddingRow) error {
	return nil
}

func (b *fakeBackend) GetEntity(ctx context.Context, key string) (*isg.Entity, error) {
	e, ok := b.entities[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

func (b *fakeBackend) Snapshot(ctx context.Context, outPath string) error { return nil }
func (b *fakeBackend) Restore(ctx context.Context, inPath string) error  { return nil }
func (b *fakeBackend) Close() error                                     { return nil }

func TestStageCreate(t *testing.T) {
	backend := newFakeBackend()
	stager := NewStager(backend)

	e, err := stager.StageCreate(context.Background(), CreateInput{
		Entity: isg.Entity{Key: "k1", Kind: isg.KindFunction, Language: isg.LanguageGo, Name: "Foo"},
		Code:   "func Foo() {}",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.CurrentInd || !e.FutureInd || e.FutureAction == nil || *e.FutureAction != isg.ActionCreate {
		t.Fatalf("unexpected triple: current=%v future=%v action=%v", e.CurrentInd, e.FutureInd, e.FutureAction)
	}

	if _, err := stager.StageCreate(context.Background(), CreateInput{Entity: isg.Entity{Key: "k1"}}); err == nil {
		t.Fatal("expected already_exists error on duplicate create")
	}
}

func TestStageEditNotFound(t *testing.T) {
	backend := newFakeBackend()
	stager := NewStager(backend)

	_, err := stager.StageEdit(context.Background(), EditInput{Key: "missing", Code: "x"})
	if err == nil {
		t.Fatal("expected not_found error")
	}
	se, ok := err.(*StageError)
	if !ok || se.Kind != ErrNotFound {
		t.Fatalf("expected StageError{Kind: not_found}, got %v", err)
	}
}

func TestStageEditConcurrentModification(t *testing.T) {
	backend := newFakeBackend()
	stager := NewStager(backend)

	stale := time.Now().Add(-time.Hour)
	backend.entities["k1"] = isg.Entity{Key: "k1", CurrentInd: true, FutureInd: true, LastModified: time.Now()}

	_, err := stager.StageEdit(context.Background(), EditInput{Key: "k1", Code: "x", ExpectedModified: stale})
	if err == nil {
		t.Fatal("expected concurrent_modification error")
	}
	se, ok := err.(*StageError)
	if !ok || se.Kind != ErrConcurrentModification {
		t.Fatalf("expected StageError{Kind: concurrent_modification}, got %v", err)
	}
}

func TestStageDeleteRefusesLiveDependents(t *testing.T) {
	backend := newFakeBackend()
	stager := NewStager(backend)

	backend.entities["callee"] = isg.Entity{Key: "callee", CurrentInd: true, FutureInd: true}
	backend.edges = []isg.Edge{isg.NewEdge("caller", "callee", isg.EdgeCalls)}

	_, err := stager.StageDelete(context.Background(), DeleteInput{Key: "callee"})
	if err == nil {
		t.Fatal("expected has_dependents error")
	}
	se, ok := err.(*StageError)
	if !ok || se.Kind != ErrHasDependents {
		t.Fatalf("expected StageError{Kind: has_dependents}, got %v", err)
	}

	// Force bypasses the dependents check.
	e, err := stager.StageDelete(context.Background(), DeleteInput{Key: "callee", Force: true})
	if err != nil {
		t.Fatalf("unexpected error with Force: %v", err)
	}
	if e.CurrentInd != true || e.FutureInd != false || e.FutureAction == nil || *e.FutureAction != isg.ActionDelete {
		t.Fatalf("unexpected triple after delete: %+v", e)
	}
}
