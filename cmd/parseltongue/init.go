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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parseltongue/parseltongue/internal/bootstrap"
	"github.com/parseltongue/parseltongue/internal/errors"
	"github.com/parseltongue/parseltongue/internal/ui"
)

type initFlags struct {
	force     bool
	projectID string
	engine    string
}

// runInit executes 'parseltongue init': write .parseltongue/project.yaml,
// then open the embedded store once so the schema and indexes exist before
// the first 'index' run.
func runInit(args []string, globals GlobalFlags) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError("cannot determine working directory", err.Error(), "", err), globals.JSON)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		errors.FatalError(errors.NewConfigError(
			fmt.Sprintf("%s already exists", configPath),
			"init refuses to overwrite an existing project without --force",
			"re-run with --force to overwrite",
			nil,
		), globals.JSON)
	}

	projectID := flags.projectID
	if projectID == "" {
		projectID = filepath.Base(cwd)
	}

	cfg := DefaultConfig(projectID, cwd)
	if flags.engine != "" {
		cfg.Store.Engine = flags.engine
	}
	cfg.Store.DataDir = filepath.Join(ConfigDir(cwd), "data")

	if err := SaveConfig(cfg, configPath); err != nil {
		errors.FatalError(errors.NewConfigError("cannot save configuration", err.Error(), "check permissions on the project directory", err), globals.JSON)
	}

	info, err := bootstrap.InitProject(bootstrap.ProjectConfig{
		ProjectID: cfg.ProjectID,
		DataDir:   cfg.Store.DataDir,
		Engine:    cfg.Store.Engine,
	}, nil)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("cannot initialize project store", err.Error(), "check that the data directory is writable", err), globals.JSON)
	}

	addToGitignore(cwd)

	if globals.JSON {
		_ = printJSON(map[string]any{"project_id": info.ProjectID, "data_dir": info.DataDir, "config": configPath})
		return
	}
	ui.Successf("Created %s", configPath)
	ui.Infof("Project data: %s", info.DataDir)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'parseltongue index' to ingest the repository")
	fmt.Println("  2. Run 'parseltongue status' to verify indexing")
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite an existing configuration")
	fs.StringVar(&f.projectID, "project-id", "", "Project identifier (default: directory name)")
	fs.StringVar(&f.engine, "engine", "", "Store engine: rocksdb, sqlite, or mem")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: parseltongue init [options]

Creates .parseltongue/project.yaml and initializes the embedded store.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func addToGitignore(dir string) {
	gitignorePath := filepath.Join(dir, ".gitignore")
	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == ".parseltongue/" || line == ".parseltongue" {
			return
		}
	}
	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, _ = f.WriteString("\n# parseltongue project data\n.parseltongue/\n")
}
