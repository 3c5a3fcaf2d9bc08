// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the Interface Signature Graph persistence
// layer: the Backend interface and its embedded implementation.
//
// # Quick Start
//
//	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
//	    DataDir:   "/path/to/.parseltongue/data",
//	    Engine:    "rocksdb",
//	    ProjectID: "myproject",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	if err := backend.EnsureSchema(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := backend.CreateIndexes(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Schema
//
// EnsureSchema creates two tables: isg_entity (one row per Entity, keyed
// on the deterministic key from pkg/isg) and isg_edge (one row per Edge,
// keyed on from_key+to_key+edge_type). A third table, isg_entity_embedding,
// backs pkg/semantic's similarity search and is populated independently of
// ingestion.
//
// # Query vs Execute vs the typed helpers
//
// Query and Execute take raw Datalog for callers (pkg/query, pkg/apply,
// internal/bootstrap) that need direct control over the script. The
// UpsertEntities/UpsertEdges/GetEntity helpers cover the common typed path
// ingestion uses and keep the Datalog schema centralized in this package.
//
// # Thread Safety
//
// EmbeddedBackend is safe for concurrent use. Reads take a shared lock;
// writes take the exclusive lock, matching the single-writer contract.
package storage
