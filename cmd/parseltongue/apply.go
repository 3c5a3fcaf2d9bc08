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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/parseltongue/parseltongue/internal/errors"
	"github.com/parseltongue/parseltongue/internal/ui"
	"github.com/parseltongue/parseltongue/pkg/apply"
)

// runApply executes 'parseltongue apply': materialize every staged entity
// to the filesystem (spec.md §4.7), gated by a project-root lock file so
// two applies never interleave.
func runApply(args []string, configPath string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("apply", pflag.ExitOnError)
	force := fs.Bool("force", false, "Apply even if the lock file from a prior run is still present")
	mustParse(fs, args)

	backend, cfg := openBackendOrExit(configPath, globals)
	defer func() { _ = backend.Close() }()

	lockPath := filepath.Join(cfg.Workspace, ".parseltongue", "apply.lock")
	if *force {
		_ = os.Remove(lockPath)
	}
	lock, err := apply.AcquireLock(lockPath)
	if err != nil {
		errors.FatalError(errors.NewApplyError("another apply is already in progress", err.Error(), "wait for it to finish, or pass --force", err), globals.JSON)
	}
	defer func() { _ = lock.Release() }()

	plan, err := apply.BuildPlan(context.Background(), backend)
	if err != nil {
		errors.FatalError(errors.NewApplyError("cannot build apply plan", err.Error(), "", err), globals.JSON)
	}
	if len(plan.Ops) == 0 {
		if globals.JSON {
			_ = printJSON(map[string]any{"files_written": []string{}})
			return
		}
		ui.Info("Nothing staged; nothing to apply")
		return
	}

	result, err := apply.Apply(plan)
	if err != nil {
		errors.FatalError(errors.NewApplyError(
			fmt.Sprintf("apply failed while writing %s", result.FilesFailed),
			err.Error(),
			"re-run 'parseltongue apply' after resolving the underlying error; files already written are recorded",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		_ = printJSON(result)
		return
	}
	ui.Successf("Applied %d operations across %d files", len(plan.Ops), len(result.FilesWritten))
	for _, f := range result.FilesWritten {
		ui.Infof("  %s (%d entities)", f, len(result.EntitiesByFile[f]))
	}
	fmt.Println()
	fmt.Println("Run 'parseltongue reset' to promote staged state and reindex.")
}
