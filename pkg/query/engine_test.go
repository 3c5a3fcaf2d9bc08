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

package query

import (
	"context"
	"strings"
	"testing"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

// fakeBackend answers the two read-only scans Engine issues (isg_entity,
// isg_edge) from in-memory fixtures; all mutation methods are unused here.
type fakeBackend struct {
	entities []isg.Entity
	edges    []isg.Edge
}

func (b *fakeBackend) Query(ctx context.Context, datalog string) (*storage.QueryResult, error) {
	if strings.Contains(datalog, "isg_edge") {
		rows := make([][]any, 0, len(b.edges))
		for _, e := range b.edges {
			rows = append(rows, []any{e.FromKey, e.ToKey, string(e.EdgeType)})
		}
		return &storage.QueryResult{Rows: rows}, nil
	}
	rows := make([][]any, 0, len(b.entities))
	for _, e := range b.entities {
		action := ""
		if e.FutureAction != nil {
			action = string(*e.FutureAction)
		}
		rows = append(rows, []any{
			e.Key, string(e.Kind), string(e.Language), e.FilePath, e.StartLine, e.EndLine,
			e.Name, e.IsPublic, e.IsTest, e.CurrentInd, e.FutureInd, action, "",
		})
	}
	return &storage.QueryResult{Rows: rows}, nil
}

func (b *fakeBackend) Execute(ctx context.Context, datalog string) error { return nil }
func (b *fakeBackend) UpsertEntities(ctx context.Context, entities []isg.Entity) error { return nil }
func (b *fakeBackend) UpsertEdges(ctx context.Context, edges []isg.Edge) error         { return nil }
func (b *fakeBackend) UpsertEmbeddings(ctx context.Context, rows []storage.EmbeddingRow) error {
	return nil
}
func (b *fakeBackend) GetEntity(ctx context.Context, key string) (*isg.Entity, error) {
	for _, e := range b.entities {
		if e.Key == key {
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}
func (b *fakeBackend) Snapshot(ctx context.Context, outPath string) error { return nil }
func (b *fakeBackend) Restore(ctx context.Context, inPath string) error  { return nil }
func (b *fakeBackend) Close() error                                     { return nil }

func drain(t *testing.T, rows <-chan Row) []Row {
	t.Helper()
	var out []Row
	for r := range rows {
		out = append(out, r)
	}
	return out
}

func TestLevel0AllEdges(t *testing.T) {
	backend := &fakeBackend{edges: []isg.Edge{
		isg.NewEdge("main.go#main", "foo.go#Foo", isg.EdgeCalls),
	}}
	engine := NewEngine(backend)

	rows, err := engine.Run(context.Background(), Level0, ALL(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := drain(t, rows)
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	if out[0].FromKey != "main.go#main" || out[0].ToKey != "foo.go#Foo" || out[0].EdgeType != "Calls" {
		t.Fatalf("unexpected row: %+v", out[0])
	}
}

func TestLevel1FilterNoMatches(t *testing.T) {
	backend := &fakeBackend{entities: []isg.Entity{
		{Key: "a", Kind: isg.KindFunction, FilePath: "a.go", Name: "A", IsPublic: false},
	}}
	engine := NewEngine(backend)

	rows, err := engine.Run(context.Background(), Level1, Eq("is_public", "true"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := drain(t, rows)
	if len(out) != 0 {
		t.Fatalf("expected zero rows on empty-of-public graph, got %d", len(out))
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	backend := &fakeBackend{}
	engine := NewEngine(backend)

	_, err := engine.Run(context.Background(), Level1, Eq("not_a_field", "x"), Options{})
	if err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestIncludeCodeRowCeiling(t *testing.T) {
	entities := make([]isg.Entity, 0, 5)
	for i := 0; i < 5; i++ {
		entities = append(entities, isg.Entity{Key: string(rune('a' + i)), Kind: isg.KindFunction, FilePath: "a.go"})
	}
	backend := &fakeBackend{entities: entities}
	engine := NewEngine(backend)

	_, err := engine.Run(context.Background(), Level1, ALL(), Options{IncludeCode: true, RowCeiling: 2})
	if err == nil {
		t.Fatal("expected row-ceiling error")
	}
	if _, ok := err.(*ErrRowCeilingExceeded); !ok {
		t.Fatalf("expected ErrRowCeilingExceeded, got %T: %v", err, err)
	}

	rows, err := engine.Run(context.Background(), Level1, ALL(), Options{IncludeCode: true, RowCeiling: 2, Force: true})
	if err != nil {
		t.Fatalf("unexpected error with Force: %v", err)
	}
	if len(drain(t, rows)) != 5 {
		t.Fatal("expected Force to bypass the ceiling and return all rows")
	}
}
