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

// Package ingestion builds the Interface Signature Graph from a source
// tree: enumerate files, parse each with tree-sitter, resolve references
// into edges, and commit the result to pkg/storage.
//
// # Pipeline
//
// Pipeline.Run executes the full ingestion sequence:
//
//  1. Discovery: RepoLoader walks the tree (or clones a git URL first),
//     honoring exclude globs and a max file size.
//  2. Parsing: TreeSitterParser runs each file's entity and dependency
//     queries, producing entities and either import edges or
//     UnresolvedRefs.
//  3. Resolution: EdgeResolver matches UnresolvedRefs against the
//     cross-file entity index: imports and the referencing file's own
//     directory first, then a project-wide name carried by exactly one
//     entity, falling back to an unresolved edge rather than dropping it.
//  4. Embedding (optional): pkg/semantic computes a vector per entity's
//     CurrentCode when the project was initialized with embeddings on.
//  5. Commit: entities and edges are upserted to storage.Backend in
//     batches sized by Batcher, never as one unbounded transaction.
//
// Per-file parse failures are logged and counted; they never abort a
// run.
//
//	pipeline, err := ingestion.NewPipeline(config, backend, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Close()
//
//	result, err := pipeline.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("indexed %d files, %d entities\n", result.FilesSucceeded, result.EntitiesCreated)
//
// # Supported languages
//
// Tree-sitter grammars are registered per isg.Language in queries.go:
// Go, Python, TypeScript, and JavaScript. Adding a language means adding
// a grammar import, an entity/dependency query pair, and a tag mapping
// in entityKindForTag/edgeTypeForTag - no change to parser.go itself.
//
// # Configuration
//
// Config and IngestionConfig (config.go) hold the inputs to a run: where
// the tree lives, which globs to exclude, size limits, and whether to
// backfill embeddings. DefaultConfig returns the settings `parseltongue
// index` and `parseltongue reset --reingest` run with.
package ingestion
