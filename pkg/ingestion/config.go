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

package ingestion

// RepoSource identifies where a tree to ingest comes from: a git URL that
// gets cloned to a scratch directory, or a path already on disk.
type RepoSource struct {
	Type  string // "git_url" or "local_path"
	Value string
}

// IngestionConfig controls a single ingestion run (spec §4.4).
type IngestionConfig struct {
	// ExcludeGlobs are glob patterns matched against repo-relative paths;
	// anything matching is skipped before parsing.
	ExcludeGlobs []string

	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64

	// MaxCodeTextSize caps how much of an entity's source text is kept in
	// CurrentCode; larger spans are truncated and counted.
	MaxCodeTextSize int64

	// Parallel enables the worker-pool parse path once the file count
	// crosses ParallelThreshold; below it files parse sequentially.
	Parallel          bool
	ParallelThreshold int

	// EmbedEntities runs the semantic embedding backfill after ingestion.
	EmbedEntities bool
}

// Config is the top-level input to a Pipeline run: where the tree
// lives and how to ingest it.
type Config struct {
	RepoSource RepoSource
	Ingestion  IngestionConfig
	ProjectID  string
}

// DefaultConfig returns the configuration `parseltongue index` and
// `parseltongue reset --reingest` run with.
func DefaultConfig(projectID string, source RepoSource) Config {
	return Config{
		RepoSource: source,
		ProjectID:  projectID,
		Ingestion: IngestionConfig{
			ExcludeGlobs: []string{
				".git/**", "node_modules/**", "vendor/**",
				"dist/**", "build/**", "target/**",
				"*.min.js", "*.generated.go",
			},
			MaxFileSize:       5 * 1024 * 1024,
			MaxCodeTextSize:   256 * 1024,
			Parallel:          true,
			ParallelThreshold: 50,
			EmbedEntities:     false,
		},
	}
}
