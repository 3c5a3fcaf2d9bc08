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

type resetFlags struct {
	reingest bool
}

// runReset executes 'parseltongue reset': promote staged Create/Edit/Delete
// entities into current state and clear the temporal triple (spec.md §4.8),
// or, with --reingest, truncate the store and re-run the ingestion pipeline
// from scratch.
func runReset(args []string, configPath string, globals GlobalFlags) {
	flags := parseResetFlags(args)

	backend, cfg := openBackendOrExit(configPath, globals)
	defer func() { _ = backend.Close() }()

	var pipeline *ingestion.Pipeline
	if flags.reingest {
		ingestCfg := ingestion.DefaultConfig(cfg.ProjectID, ingestion.RepoSource{Type: "local_path", Value: cfg.Workspace})
		ingestCfg.Ingestion.ExcludeGlobs = cfg.Ingestion.ExcludeGlobs
		ingestCfg.Ingestion.EmbedEntities = cfg.Ingestion.EmbedEntities
		p, err := ingestion.NewPipeline(ingestCfg, backend, nil)
		if err != nil {
			errors.FatalError(errors.NewInternalError("cannot construct ingestion pipeline", err.Error(), "", err), globals.JSON)
		}
		defer func() { _ = p.Close() }()
		pipeline = p
	}

	var spinner = NewSpinner(NewProgressConfig(globals), "Resetting project state")
	report, err := ingestion.Reset(context.Background(), backend, pipeline, flags.reingest)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		errors.FatalError(errors.NewInternalError("reset failed", err.Error(), "", err), globals.JSON)
	}

	if globals.JSON {
		_ = printJSON(report)
		return
	}
	if report.Reingested {
		ui.Successf("Reset and reindexed: %d entities created, %d edges resolved", report.Ingestion.EntitiesCreated, report.Ingestion.EdgesResolved)
		return
	}
	ui.Successf("Promoted %d entities, deleted %d, removed %d edges", report.EntitiesPromoted, report.EntitiesDeleted, report.EdgesRemoved)
}

func parseResetFlags(args []string) resetFlags {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	var f resetFlags
	fs.BoolVar(&f.reingest, "reingest", false, "Truncate the store and re-run ingestion from scratch, instead of promoting staged state")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parseltongue reset [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}
