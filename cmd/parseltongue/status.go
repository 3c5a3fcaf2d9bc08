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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/parseltongue/parseltongue/pkg/storage"
)

// StatusResult reports project identity and graph statistics, for both
// the human-readable and --json renderings of 'parseltongue status'.
type StatusResult struct {
	ProjectID  string    `json:"project_id"`
	DataDir    string    `json:"data_dir"`
	Connected  bool      `json:"connected"`
	Entities   int       `json:"entities"`
	Edges      int       `json:"edges"`
	Embeddings int       `json:"embeddings"`
	Staged     int       `json:"staged"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// runStatus executes 'parseltongue status': a read-only summary of the
// project's store, useful for confirming an index or stage actually took.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parseltongue status [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		reportStatusErr(err, globals)
		return
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		reportStatusErr(err, globals)
		return
	}

	result := &StatusResult{ProjectID: cfg.ProjectID, DataDir: cfg.Store.DataDir}

	if _, err := os.Stat(cfg.Store.DataDir); os.IsNotExist(err) {
		result.Error = "project not indexed yet; run 'parseltongue index' first"
		if globals.JSON {
			_ = printJSON(result)
		} else {
			fmt.Printf("Project %q not indexed yet.\n", cfg.ProjectID)
			fmt.Println("Run 'parseltongue index' to index the repository.")
		}
		return
	}

	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:   cfg.Store.DataDir,
		Engine:    cfg.Store.Engine,
		ProjectID: cfg.ProjectID,
	})
	if err != nil {
		result.Error = fmt.Sprintf("cannot open store: %v", err)
		reportStatusResult(result, globals)
		return
	}
	defer func() { _ = backend.Close() }()

	result.Connected = true
	ctx := context.Background()
	result.Entities = countRows(ctx, backend, "?[count(key)] := *isg_entity { key }")
	result.Edges = countRows(ctx, backend, "?[count(from_key)] := *isg_edge { from_key }")
	result.Embeddings = countRows(ctx, backend, "?[count(key)] := *isg_entity_embedding { key }")
	result.Staged = countRows(ctx, backend, "?[count(key)] := *isg_entity { key, future_action }, future_action != null")

	reportStatusResult(result, globals)
}

// countRows runs a Datalog count aggregation and extracts the scalar
// result, treating any failure as zero rather than aborting status.
func countRows(ctx context.Context, backend *storage.EmbeddedBackend, script string) int {
	result, err := backend.Query(ctx, script)
	if err != nil || len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return 0
	}
	switch v := result.Rows[0][0].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func reportStatusErr(err error, globals GlobalFlags) {
	result := &StatusResult{Connected: false, Error: err.Error(), Timestamp: time.Now()}
	reportStatusResult(result, globals)
	os.Exit(1)
}

func reportStatusResult(result *StatusResult, globals GlobalFlags) {
	result.Timestamp = time.Now()
	if globals.JSON {
		_ = printJSON(result)
		return
	}
	fmt.Println("Parseltongue Project Status")
	fmt.Println("===========================")
	fmt.Printf("Project ID: %s\n", result.ProjectID)
	fmt.Printf("Data Dir:   %s\n", result.DataDir)
	if result.Error != "" {
		fmt.Printf("Error:      %s\n", result.Error)
		return
	}
	fmt.Println()
	fmt.Println("Graph:")
	fmt.Printf("  Entities:   %d\n", result.Entities)
	fmt.Printf("  Edges:      %d\n", result.Edges)
	fmt.Printf("  Embeddings: %d\n", result.Embeddings)
	fmt.Printf("  Staged:     %d\n", result.Staged)
}
