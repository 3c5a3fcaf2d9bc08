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
	"strings"

	"github.com/parseltongue/parseltongue/internal/errors"
	"github.com/parseltongue/parseltongue/pkg/query"
)

type queryFlags struct {
	filter      string
	includeCode bool
	force       bool
}

// runQuery executes 'parseltongue query <level> [--filter expr]': spec.md
// §4.6's progressively richer views over the graph, streamed as NDJSON.
func runQuery(args []string, configPath string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: parseltongue query <level0|level1|level2> [options]")
		os.Exit(1)
	}
	levelArg := args[0]
	flags := parseQueryFlags(args[1:])

	level, err := parseLevel(levelArg)
	if err != nil {
		errors.FatalError(errors.NewQueryError(err.Error(), "", "use level0, level1, or level2"), globals.JSON)
	}

	filter := query.ALL()
	if flags.filter != "" {
		filter, err = parseFilterExpr(flags.filter)
		if err != nil {
			errors.FatalError(errors.NewQueryError("cannot parse --filter", err.Error(), "use field=value, field!=value, field~pattern, or field>value"), globals.JSON)
		}
	}

	backend, cfg := openBackendOrExit(configPath, globals)
	defer func() { _ = backend.Close() }()

	ceiling := cfg.Query.RowCeiling
	if ceiling <= 0 {
		ceiling = query.DefaultRowCeiling
	}

	engine := query.NewEngine(backend)
	rows, err := engine.Run(context.Background(), level, filter, query.Options{
		IncludeCode: flags.includeCode,
		Force:       flags.force,
		RowCeiling:  ceiling,
	})
	if err != nil {
		if ceilErr, ok := err.(*query.ErrRowCeilingExceeded); ok {
			errors.FatalError(errors.NewQueryError(
				fmt.Sprintf("query matched %d rows, exceeding the %d-row ceiling", ceilErr.Matched, ceilErr.Ceiling),
				"include_code=true is not allowed above the row ceiling without --force",
				"narrow the filter or pass --force",
			), globals.JSON)
		}
		errors.FatalError(errors.NewQueryError(err.Error(), "", ""), globals.JSON)
	}

	if _, err := query.WriteNDJSON(os.Stdout, rows); err != nil {
		errors.FatalError(errors.NewInternalError("failed writing query output", err.Error(), "", err), globals.JSON)
	}
}

func parseQueryFlags(args []string) queryFlags {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var f queryFlags
	fs.StringVar(&f.filter, "filter", "", "Filter expression: field=value, field!=value, field~pattern, field>value")
	fs.BoolVar(&f.includeCode, "include-code", false, "Include current/future code text in results")
	fs.BoolVar(&f.force, "force", false, "Bypass the row-count ceiling for include-code results")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parseltongue query <level0|level1|level2> [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func parseLevel(s string) (query.Level, error) {
	switch strings.ToLower(s) {
	case "0", "level0":
		return query.Level0, nil
	case "1", "level1":
		return query.Level1, nil
	case "2", "level2":
		return query.Level2, nil
	default:
		return 0, fmt.Errorf("unknown query level %q", s)
	}
}

// parseFilterExpr parses a single atomic predicate of the form
// field<op>value, where op is one of "!=", "~", ">", "=". Composite
// filters (AND/OR) aren't exposed at the CLI; callers needing those use
// pkg/query.Engine directly.
func parseFilterExpr(expr string) (query.Filter, error) {
	for _, op := range []string{"!=", "~", ">", "="} {
		if idx := strings.Index(expr, op); idx > 0 {
			field := strings.TrimSpace(expr[:idx])
			value := strings.TrimSpace(expr[idx+len(op):])
			switch op {
			case "!=":
				return query.Neq(field, value), nil
			case "~":
				return query.Match(field, value), nil
			case ">":
				return query.Gt(field, value), nil
			case "=":
				return query.Eq(field, value), nil
			}
		}
	}
	return query.Filter{}, fmt.Errorf("expected field<op>value, got %q", expr)
}
