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
	"time"

	"github.com/spf13/pflag"

	"github.com/parseltongue/parseltongue/internal/bootstrap"
	"github.com/parseltongue/parseltongue/internal/errors"
	"github.com/parseltongue/parseltongue/internal/ui"
	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
	"github.com/parseltongue/parseltongue/pkg/temporal"
)

// runStage executes 'parseltongue stage <create|edit|delete>': records
// intent against the graph's temporal triple without touching files
// (spec.md §4.5). Long flags use pflag, matching apply's ergonomics for
// --force/--anchor.
func runStage(args []string, configPath string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: parseltongue stage <create|edit|delete> [options]")
		os.Exit(1)
	}
	op := args[0]
	rest := args[1:]

	backend, cfg := openBackendOrExit(configPath, globals)
	defer func() { _ = backend.Close() }()
	stager := temporal.NewStager(backend)
	_ = cfg

	switch op {
	case "create":
		runStageCreate(stager, rest, globals)
	case "edit":
		runStageEdit(stager, rest, globals)
	case "delete":
		runStageDelete(stager, rest, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown stage operation: %s\n", op)
		os.Exit(1)
	}
}

func runStageCreate(stager *temporal.Stager, args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("stage create", pflag.ExitOnError)
	key := fs.String("key", "", "Deterministic key for the new entity (required)")
	kind := fs.String("kind", "fn", "Entity kind: fn, method, struct, interface, ...")
	language := fs.String("language", "go", "Source language")
	file := fs.String("file", "", "File path the entity belongs to (required)")
	name := fs.String("name", "", "Entity name")
	code := fs.String("code", "", "Future source text (required)")
	anchor := fs.Int("anchor", 0, "Byte offset to insert at when the file already exists (default: end of file)")
	mustParse(fs, args)

	if *key == "" || *file == "" || *code == "" {
		errors.FatalError(errors.NewInputError("stage create requires --key, --file, and --code", "", "pass all three flags"), globals.JSON)
	}

	entity := isg.Entity{
		Key:      *key,
		Kind:     isg.Kind(*kind),
		Language: isg.Language(*language),
		FilePath: *file,
		Name:     *name,
	}
	if *anchor > 0 {
		entity.ByteRange = isg.ByteRange{Start: *anchor, End: *anchor}
	}

	result, err := stager.StageCreate(context.Background(), temporal.CreateInput{Entity: entity, Code: *code})
	reportStageResult(result, err, "create", globals)
}

func runStageEdit(stager *temporal.Stager, args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("stage edit", pflag.ExitOnError)
	key := fs.String("key", "", "Key of the entity to edit (required)")
	code := fs.String("code", "", "New future source text (required)")
	expected := fs.String("expected-modified", "", "RFC3339 timestamp of the entity's last known LastModified, for optimistic concurrency")
	mustParse(fs, args)

	if *key == "" || *code == "" {
		errors.FatalError(errors.NewInputError("stage edit requires --key and --code", "", "pass both flags"), globals.JSON)
	}

	var expectedTime time.Time
	if *expected != "" {
		t, err := time.Parse(time.RFC3339, *expected)
		if err != nil {
			errors.FatalError(errors.NewInputError("cannot parse --expected-modified", err.Error(), "use RFC3339, e.g. 2026-07-31T00:00:00Z"), globals.JSON)
		}
		expectedTime = t
	}

	result, err := stager.StageEdit(context.Background(), temporal.EditInput{Key: *key, Code: *code, ExpectedModified: expectedTime})
	reportStageResult(result, err, "edit", globals)
}

func runStageDelete(stager *temporal.Stager, args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("stage delete", pflag.ExitOnError)
	key := fs.String("key", "", "Key of the entity to delete (required)")
	expected := fs.String("expected-modified", "", "RFC3339 timestamp of the entity's last known LastModified")
	force := fs.Bool("force", false, "Delete even if live entities still depend on this one")
	mustParse(fs, args)

	if *key == "" {
		errors.FatalError(errors.NewInputError("stage delete requires --key", "", "pass --key"), globals.JSON)
	}

	var expectedTime time.Time
	if *expected != "" {
		t, err := time.Parse(time.RFC3339, *expected)
		if err != nil {
			errors.FatalError(errors.NewInputError("cannot parse --expected-modified", err.Error(), "use RFC3339, e.g. 2026-07-31T00:00:00Z"), globals.JSON)
		}
		expectedTime = t
	}

	result, err := stager.StageDelete(context.Background(), temporal.DeleteInput{Key: *key, ExpectedModified: expectedTime, Force: *force})
	reportStageResult(result, err, "delete", globals)
}

func reportStageResult(result *isg.Entity, err error, op string, globals GlobalFlags) {
	if err != nil {
		errors.FatalError(errors.NewStageError(fmt.Sprintf("stage %s failed", op), err.Error(), "inspect the entity's current state with 'parseltongue query level1'", err), globals.JSON)
	}
	if globals.JSON {
		_ = printJSON(result)
		return
	}
	ui.Successf("Staged %s for %s", op, result.Key)
}

func mustParse(fs *pflag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
}

func openBackendOrExit(configPath string, globals GlobalFlags) (*storage.EmbeddedBackend, *Config) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		errors.FatalError(errors.NewInternalError("cannot resolve config path", err.Error(), "", err), globals.JSON)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		errors.FatalError(errors.NewConfigError("cannot load project configuration", err.Error(), "run 'parseltongue init' first", err), globals.JSON)
	}
	backend, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID: cfg.ProjectID, DataDir: cfg.Store.DataDir, Engine: cfg.Store.Engine,
	}, nil)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("cannot open project store", err.Error(), "run 'parseltongue init' first", err), globals.JSON)
	}
	return backend, cfg
}
