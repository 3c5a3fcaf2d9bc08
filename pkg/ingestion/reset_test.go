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

package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

// fakeResetBackend is a minimal in-memory storage.Backend sufficient to
// exercise Reset's promote/clear/truncate Datalog shapes without an
// isgdb instance.
type fakeResetBackend struct {
	entities map[string]isg.Entity
	edges    []isg.Edge
}

func newFakeResetBackend() *fakeResetBackend {
	return &fakeResetBackend{entities: make(map[string]isg.Entity)}
}

func (b *fakeResetBackend) Query(ctx context.Context, datalog string) (*storage.QueryResult, error) {
	if strings.Contains(datalog, "future_action != null") {
		res := &storage.QueryResult{Headers: []string{"key", "future_action", "future_code"}}
		for _, e := range b.entities {
			if e.FutureAction == nil {
				continue
			}
			code := ""
			if e.FutureCode != nil {
				code = *e.FutureCode
			}
			res.Rows = append(res.Rows, []any{e.Key, string(*e.FutureAction), code})
		}
		return res, nil
	}
	return &storage.QueryResult{}, nil
}

func (b *fakeResetBackend) Execute(ctx context.Context, datalog string) error {
	switch {
	case strings.Contains(datalog, "::remove"):
		rel := strings.TrimSpace(strings.TrimPrefix(datalog, "::remove"))
		switch rel {
		case "isg_entity":
			b.entities = make(map[string]isg.Entity)
		case "isg_edge":
			b.edges = nil
		}
		return nil
	case strings.Contains(datalog, ":rm isg_entity"):
		key := extractQuoted(datalog)
		delete(b.entities, key)
		return nil
	case strings.Contains(datalog, ":rm isg_edge"):
		key := extractQuoted(datalog)
		var kept []isg.Edge
		for _, e := range b.edges {
			if e.FromKey == key || e.ToKey == key {
				continue
			}
			kept = append(kept, e)
		}
		b.edges = kept
		return nil
	case strings.Contains(datalog, ":update isg_entity") && strings.Contains(datalog, "current_code"):
		key, code := extractKeyAndCode(datalog)
		e := b.entities[key]
		e.CurrentCode = &code
		e.CurrentInd = true
		b.entities[key] = e
		return nil
	case strings.Contains(datalog, ":update isg_entity") && strings.Contains(datalog, "future_ind"):
		for k, e := range b.entities {
			e.FutureInd = e.CurrentInd
			e.FutureAction = nil
			e.FutureCode = nil
			b.entities[k] = e
		}
		return nil
	}
	return nil
}

func extractQuoted(s string) string {
	i := strings.Index(s, `"`)
	if i < 0 {
		return ""
	}
	j := strings.Index(s[i+1:], `"`)
	if j < 0 {
		return ""
	}
	return s[i+1 : i+1+j]
}

func extractKeyAndCode(s string) (string, string) {
	parts := strings.SplitN(s, `"`, 5)
	if len(parts) < 4 {
		return "", ""
	}
	return parts[1], parts[3]
}

func (b *fakeResetBackend) UpsertEntities(ctx context.Context, entities []isg.Entity) error {
	for _, e := range entities {
		b.entities[e.Key] = e
	}
	return nil
}
func (b *fakeResetBackend) UpsertEdges(ctx context.Context, edges []isg.Edge) error {
	b.edges = append(b.edges, edges...)
	return nil
}
func (b *fakeResetBackend) UpsertEmbeddings(ctx context.Context, rows []storage.EmbeddingRow) error {
	return nil
}
func (b *fakeResetBackend) GetEntity(ctx context.Context, key string) (*isg.Entity, error) {
	if e, ok := b.entities[key]; ok {
		return &e, nil
	}
	return nil, storage.ErrNotFound
}
func (b *fakeResetBackend) Snapshot(ctx context.Context, outPath string) error  { return nil }
func (b *fakeResetBackend) Restore(ctx context.Context, inPath string) error   { return nil }
func (b *fakeResetBackend) Close() error                                      { return nil }

func strPtrReset(s string) *string { return &s }

func TestResetPromotesCreateAndEdit(t *testing.T) {
	b := newFakeResetBackend()
	create := isg.ActionCreate
	edit := isg.ActionEdit
	b.entities["k1"] = isg.Entity{Key: "k1", FutureAction: &create, FutureCode: strPtrReset("new body"), CurrentInd: false}
	b.entities["k2"] = isg.Entity{Key: "k2", FutureAction: &edit, FutureCode: strPtrReset("edited body"), CurrentInd: true, CurrentCode: strPtrReset("old body")}

	report, err := Reset(context.Background(), b, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.EntitiesPromoted != 2 {
		t.Fatalf("expected 2 promoted, got %d", report.EntitiesPromoted)
	}
	if *b.entities["k1"].CurrentCode != "new body" || !b.entities["k1"].CurrentInd {
		t.Fatalf("k1 not promoted correctly: %+v", b.entities["k1"])
	}
	if b.entities["k1"].FutureAction != nil {
		t.Fatalf("expected future_action cleared after reset, got %v", b.entities["k1"].FutureAction)
	}
}

func TestResetDeletesEntityAndIncidentEdges(t *testing.T) {
	b := newFakeResetBackend()
	del := isg.ActionDelete
	b.entities["k1"] = isg.Entity{Key: "k1", FutureAction: &del, CurrentInd: true}
	b.edges = append(b.edges, isg.NewEdge("other", "k1", isg.EdgeCalls))

	report, err := Reset(context.Background(), b, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.EntitiesDeleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", report.EntitiesDeleted)
	}
	if _, ok := b.entities["k1"]; ok {
		t.Fatalf("expected k1 removed")
	}
	if len(b.edges) != 0 {
		t.Fatalf("expected incident edges removed, got %d", len(b.edges))
	}
}

func TestResetReingestRequiresPipeline(t *testing.T) {
	b := newFakeResetBackend()
	if _, err := Reset(context.Background(), b, nil, true); err == nil {
		t.Fatalf("expected error when reingest requested without a pipeline")
	}
}
