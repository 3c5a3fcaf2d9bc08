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

// Package main implements the parseltongue CLI: indexing a repository into
// the Interface Signature Graph, querying it, staging and applying changes,
// and resetting a project.
//
// Usage:
//
//	parseltongue init                    Create .parseltongue/project.yaml
//	parseltongue index                   Ingest the current repository
//	parseltongue query <level> [filter]  Run a progressive-disclosure query
//	parseltongue stage <create|edit|delete> ...   Stage a change
//	parseltongue apply                   Materialize staged changes to files
//	parseltongue reset                   Promote staged state, reindex
//	parseltongue [--json] status         Show project status
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/parseltongue/parseltongue/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags carries the flags every subcommand understands.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .parseltongue/project.yaml (default: ./.parseltongue/project.yaml)")
		jsonOut     = flag.Bool("json", false, "Emit machine-readable JSON output")
		quiet       = flag.Bool("quiet", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `parseltongue - Interface Signature Graph CLI

Usage:
  parseltongue <command> [options]

Commands:
  init     Create .parseltongue/project.yaml configuration
  index    Ingest the current repository
  query    Run a progressive-disclosure query against the graph
  stage    Stage a create/edit/delete against an entity
  apply    Materialize staged changes to files
  reset    Promote staged state to current and reindex
  status   Show project status

Global Options:
  --config     Path to .parseltongue/project.yaml
  --json       Emit machine-readable JSON output
  --quiet      Suppress progress output
  --no-color   Disable colored output
  --version    Show version and exit

Examples:
  parseltongue init
  parseltongue index
  parseltongue query level1 --filter 'kind=fn'
  parseltongue stage create --key pkg.Foo --file pkg/foo.go --code 'func Foo() {}'
  parseltongue apply
  parseltongue reset
  parseltongue --json status

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("parseltongue version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{JSON: *jsonOut, Quiet: *quiet || *jsonOut, NoColor: *noColor}
	ui.InitColors(globals.NoColor || globals.JSON)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath, globals)
	case "stage":
		runStage(cmdArgs, *configPath, globals)
	case "apply":
		runApply(cmdArgs, *configPath, globals)
	case "reset":
		runReset(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
