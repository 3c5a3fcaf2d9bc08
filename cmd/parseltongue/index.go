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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/parseltongue/parseltongue/internal/errors"
	"github.com/parseltongue/parseltongue/internal/ui"
	"github.com/parseltongue/parseltongue/pkg/ingestion"
)

type indexFlags struct {
	full bool
}

// runIndex executes 'parseltongue index': load the project config, open
// the store, and run the ingestion pipeline (spec.md §4.4) against the
// project root.
func runIndex(args []string, configPath string, globals GlobalFlags) {
	flags := parseIndexFlags(args)

	backend, cfg := openBackendOrExit(configPath, globals)
	defer func() { _ = backend.Close() }()

	ingestCfg := ingestion.DefaultConfig(cfg.ProjectID, ingestion.RepoSource{Type: "local_path", Value: cfg.Workspace})
	ingestCfg.Ingestion.ExcludeGlobs = cfg.Ingestion.ExcludeGlobs
	ingestCfg.Ingestion.EmbedEntities = cfg.Ingestion.EmbedEntities
	_ = flags.full

	pipeline, err := ingestion.NewPipeline(ingestCfg, backend, nil)
	if err != nil {
		errors.FatalError(errors.NewInternalError("cannot construct ingestion pipeline", err.Error(), "", err), globals.JSON)
	}
	defer func() { _ = pipeline.Close() }()

	progressCfg := NewProgressConfig(globals)
	spinner := NewSpinner(progressCfg, "Indexing repository")

	result, err := pipeline.Run(context.Background())
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		errors.FatalError(errors.NewInternalError("ingestion failed", err.Error(), "", err), globals.JSON)
	}

	if globals.JSON {
		_ = printJSON(result)
		return
	}
	ui.Successf("Indexed %d/%d files (%d failed)", result.FilesSucceeded, result.FilesAttempted, result.FilesFailed)
	ui.Infof("Entities: %d  Edges resolved: %d  Unresolved: %d", result.EntitiesCreated, result.EdgesResolved, result.EdgesUnresolved)
	if result.EmbeddingsComputed > 0 || result.EmbeddingErrors > 0 {
		ui.Infof("Embeddings: %d computed, %d errors", result.EmbeddingsComputed, result.EmbeddingErrors)
	}
	ui.Infof("Duration: %s", result.TotalDuration)
}

func parseIndexFlags(args []string) indexFlags {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	var f indexFlags
	fs.BoolVar(&f.full, "full", false, "Force a full re-index (currently the only mode; incremental reindex is an Open Question)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parseltongue index [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}
