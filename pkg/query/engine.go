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

// Package query serves the three progressively richer views spec §4.6
// defines over the Interface Signature Graph: Level0 (edge list), Level1
// (entity + ISG + temporal state), and Level2 (Level1 plus type-system
// fields). A small declarative Filter grammar keeps the query dialect from
// growing into general-purpose SQL, and a row-count ceiling gates
// include_code so a broad query can't flood a caller's context window.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

// DefaultRowCeiling bounds how many rows a query may return with
// include_code=true before the caller must pass Force.
const DefaultRowCeiling = 300

// ErrRowCeilingExceeded is returned when include_code is requested but the
// filter's selectivity would return more than the configured ceiling, and
// the caller didn't set Force.
type ErrRowCeilingExceeded struct {
	Matched int
	Ceiling int
}

func (e *ErrRowCeilingExceeded) Error() string {
	return fmt.Sprintf("query matched %d rows with include_code=true, exceeding the %d row ceiling; pass --force to override", e.Matched, e.Ceiling)
}

// Options configures a Run call.
type Options struct {
	IncludeCode bool
	Force       bool
	RowCeiling  int // 0 uses DefaultRowCeiling
}

// Engine executes queries against an ISG backend.
type Engine struct {
	backend storage.Backend
}

// NewEngine wraps a backend for querying.
func NewEngine(backend storage.Backend) *Engine {
	return &Engine{backend: backend}
}

// Run executes filter against level and streams matching rows on the
// returned channel. The channel is closed when the scan completes or ctx
// is canceled. Any error (including a row-ceiling violation, which aborts
// before any row is sent) is reported via the returned error.
func (e *Engine) Run(ctx context.Context, level Level, filter Filter, opts Options) (<-chan Row, error) {
	if err := filter.Validate(level); err != nil {
		return nil, err
	}

	edges, err := e.fetchEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: fetch edges: %w", err)
	}

	if level == Level0 {
		return e.runLevel0(edges, filter)
	}

	entities, err := e.fetchEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: fetch entities: %w", err)
	}

	forward := map[string][]string{}
	reverse := map[string][]string{}
	for _, ed := range edges {
		forward[ed.FromKey] = append(forward[ed.FromKey], ed.ToKey)
		reverse[ed.ToKey] = append(reverse[ed.ToKey], ed.FromKey)
	}

	rows := make([]Row, 0, len(entities))
	for _, ent := range entities {
		row := entityRow(ent, level)
		row.ForwardDeps = forward[ent.Key]
		row.ReverseDeps = reverse[ent.Key]
		if !filter.Match(entityFields(ent)) {
			continue
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FilePath != rows[j].FilePath {
			return rows[i].FilePath < rows[j].FilePath
		}
		return rows[i].Key < rows[j].Key
	})

	ceiling := opts.RowCeiling
	if ceiling <= 0 {
		ceiling = DefaultRowCeiling
	}
	if opts.IncludeCode && !opts.Force && len(rows) > ceiling {
		return nil, &ErrRowCeilingExceeded{Matched: len(rows), Ceiling: ceiling}
	}
	if !opts.IncludeCode {
		for i := range rows {
			rows[i].CurrentCode = ""
			rows[i].FutureCode = ""
		}
	}

	out := make(chan Row)
	go func() {
		defer close(out)
		for _, r := range rows {
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
	}()
	return out, nil
}

func (e *Engine) runLevel0(edges []isg.Edge, filter Filter) (<-chan Row, error) {
	out := make(chan Row)
	go func() {
		defer close(out)
		for _, ed := range edges {
			row := Row{FromKey: ed.FromKey, ToKey: ed.ToKey, EdgeType: string(ed.EdgeType)}
			fields := map[string]string{"from_key": ed.FromKey, "to_key": ed.ToKey, "edge_type": string(ed.EdgeType)}
			if filter.Match(fields) {
				out <- row
			}
		}
	}()
	return out, nil
}

func entityRow(e isg.Entity, level Level) Row {
	row := Row{
		Key:                e.Key,
		Kind:               string(e.Kind),
		Language:           string(e.Language),
		FilePath:           e.FilePath,
		Name:               e.Name,
		InterfaceSignature: signatureString(e.Signature),
		IsPublic:           e.IsPublic,
		IsTest:             e.IsTest,
		CurrentInd:         e.CurrentInd,
		FutureInd:          e.FutureInd,
		LastModified:       e.LastModified.Format("2006-01-02T15:04:05Z07:00"),
	}
	if e.FutureAction != nil {
		row.FutureAction = string(*e.FutureAction)
	}
	if e.CurrentCode != nil {
		row.CurrentCode = *e.CurrentCode
	}
	if e.FutureCode != nil {
		row.FutureCode = *e.FutureCode
	}
	if level == Level2 {
		row.ReturnType = e.Signature.ReturnType
		row.IsAsync = e.IsAsync
		row.IsUnsafe = e.IsUnsafe
		for _, p := range e.Signature.Params {
			row.ParamTypes = append(row.ParamTypes, p.Type)
		}
	}
	return row
}

func entityFields(e isg.Entity) map[string]string {
	fields := map[string]string{
		"key": e.Key, "kind": string(e.Kind), "language": string(e.Language),
		"file_path": e.FilePath, "name": e.Name,
		"interface_signature": signatureString(e.Signature),
		"is_public":           strconv.FormatBool(e.IsPublic),
		"is_test":             strconv.FormatBool(e.IsTest),
		"current_ind":         strconv.FormatBool(e.CurrentInd),
		"future_ind":          strconv.FormatBool(e.FutureInd),
		"last_modified":       e.LastModified.Format("2006-01-02T15:04:05Z07:00"),
		"is_async":            strconv.FormatBool(e.IsAsync),
		"is_unsafe":           strconv.FormatBool(e.IsUnsafe),
	}
	if e.FutureAction != nil {
		fields["future_action"] = string(*e.FutureAction)
	} else {
		fields["future_action"] = ""
	}
	return fields
}

func signatureString(s isg.Signature) string {
	out := "("
	for i, p := range s.Params {
		if i > 0 {
			out += ", "
		}
		out += p.Name + " " + p.Type
	}
	out += ")"
	if s.ReturnType != "" {
		out += " " + s.ReturnType
	}
	return out
}

func (e *Engine) fetchEntities(ctx context.Context) ([]isg.Entity, error) {
	res, err := e.backend.Query(ctx, `?[key, kind, language, file_path, start_line, end_line, name, is_public, is_test,
	current_ind, future_ind, future_action, last_modified] := *isg_entity{key, kind, language, file_path, start_line, end_line, name, is_public, is_test, current_ind, future_ind, future_action, last_modified}`)
	if err != nil {
		return nil, err
	}
	entities := make([]isg.Entity, 0, len(res.Rows))
	for _, row := range res.Rows {
		entities = append(entities, rowToEntity(row))
	}
	return entities, nil
}

func rowToEntity(row []any) isg.Entity {
	get := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		if s, ok := row[i].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", row[i])
	}
	getBool := func(i int) bool {
		if i >= len(row) || row[i] == nil {
			return false
		}
		if b, ok := row[i].(bool); ok {
			return b
		}
		return get(i) == "true"
	}
	e := isg.Entity{
		Key:        get(0),
		Kind:       isg.Kind(get(1)),
		Language:   isg.Language(get(2)),
		FilePath:   get(3),
		Name:       get(6),
		IsPublic:   getBool(7),
		IsTest:     getBool(8),
		CurrentInd: getBool(9),
		FutureInd:  getBool(10),
	}
	if fa := get(11); fa != "" {
		action := isg.FutureAction(fa)
		e.FutureAction = &action
	}
	return e
}

func (e *Engine) fetchEdges(ctx context.Context) ([]isg.Edge, error) {
	res, err := e.backend.Query(ctx, `?[from_key, to_key, edge_type] := *isg_edge{from_key, to_key, edge_type}`)
	if err != nil {
		return nil, err
	}
	edges := make([]isg.Edge, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 3 {
			continue
		}
		from, _ := row[0].(string)
		to, _ := row[1].(string)
		et, _ := row[2].(string)
		edges = append(edges, isg.NewEdge(from, to, isg.EdgeType(et)))
	}
	return edges, nil
}
