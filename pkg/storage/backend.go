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

// Package storage provides the Interface Signature Graph persistence layer:
// keyed upserts, secondary-indexed scans, atomic transactions, and
// snapshot/restore on top of an embedded Datalog store (pkg/isgdb).
package storage

import (
	"context"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/isgdb"
)

// Backend is the interface every ISG store implementation must satisfy.
// The reference build ships one implementation, EmbeddedBackend; a remote
// or networked store is a legal substitute as long as it preserves the
// single-writer, read-many concurrency contract (spec §6).
type Backend interface {
	// Query executes a read-only Datalog query and returns the results.
	Query(ctx context.Context, datalog string) (*QueryResult, error)

	// Execute runs a Datalog mutation (insert, update, delete).
	Execute(ctx context.Context, datalog string) error

	// UpsertEntities writes a batch of entities, replacing any existing row
	// with the same key.
	UpsertEntities(ctx context.Context, entities []isg.Entity) error

	// UpsertEdges writes a batch of edges, replacing any existing row with
	// the same (from_key, to_key, edge_type).
	UpsertEdges(ctx context.Context, edges []isg.Edge) error

	// UpsertEmbeddings writes a batch of entity embeddings, replacing any
	// existing row with the same key.
	UpsertEmbeddings(ctx context.Context, rows []EmbeddingRow) error

	// GetEntity returns the entity stored under key, or ErrNotFound.
	GetEntity(ctx context.Context, key string) (*isg.Entity, error)

	// Snapshot writes a consistent copy of the store to outPath.
	Snapshot(ctx context.Context, outPath string) error

	// Restore replaces the store's contents with a prior Snapshot.
	Restore(ctx context.Context, inPath string) error

	// Close releases any resources held by the backend.
	Close() error
}

// EmbeddingRow is one row of pkg/semantic's embedding output, ready to
// persist into isg_entity_embedding. embedding_json is a pre-marshaled
// JSON array so the storage layer never depends on pkg/semantic's vector
// type.
type EmbeddingRow struct {
	Key           string
	Model         string
	EmbeddingJSON string
}

// QueryResult represents the result of a Datalog query.
type QueryResult struct {
	Headers []string
	Rows    [][]any
}

// ToNamedRows converts QueryResult to isgdb.NamedRows for direct DB access.
func (r *QueryResult) ToNamedRows() isgdb.NamedRows {
	return isgdb.NamedRows{Headers: r.Headers, Rows: r.Rows}
}

// FromNamedRows converts isgdb.NamedRows to a QueryResult.
func FromNamedRows(nr isgdb.NamedRows) *QueryResult {
	return &QueryResult{Headers: nr.Headers, Rows: nr.Rows}
}

// ErrNotFound is returned by GetEntity when no row matches the given key.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "entity not found" }
