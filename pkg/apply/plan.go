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

// Package apply materializes staged future-state entities into files:
// topologically order the staged set, group by file, compute per-file
// byte-range edits, and write each file atomically (spec §4.7).
package apply

import (
	"context"
	"fmt"
	"sort"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

// Op is one entity's staged change, ready to apply.
type Op struct {
	Entity isg.Entity
	Action isg.FutureAction
}

// Plan is the ordered sequence of operations an Apply will execute.
// Ordering is deterministic: topologically sorted by dependency edges
// (producers before consumers) with ties (and cycles) broken by
// (file_path, start_line).
type Plan struct {
	Ops []Op
}

// BuildPlan snapshots every entity with a non-nil future_action and orders
// them for application.
func BuildPlan(ctx context.Context, backend storage.Backend) (*Plan, error) {
	res, err := backend.Query(ctx, `?[key, kind, language, file_path, start_line, end_line, name, future_action] :=
	*isg_entity{key, kind, language, file_path, start_line, end_line, name, future_action}, future_action != null`)
	if err != nil {
		return nil, fmt.Errorf("apply: snapshot staged entities: %w", err)
	}

	edgeRes, err := backend.Query(ctx, `?[from_key, to_key] := *isg_edge{from_key, to_key}`)
	if err != nil {
		return nil, fmt.Errorf("apply: snapshot edges: %w", err)
	}

	ops := make([]Op, 0, len(res.Rows))
	byKey := make(map[string]isg.Entity, len(res.Rows))
	for _, row := range res.Rows {
		e := rowToStagedEntity(row)
		if e.Key == "" || e.FutureAction == nil {
			continue
		}
		ops = append(ops, Op{Entity: e, Action: *e.FutureAction})
		byKey[e.Key] = e
	}

	deps := make(map[string][]string)
	for _, row := range edgeRes.Rows {
		if len(row) < 2 {
			continue
		}
		from, _ := row[0].(string)
		to, _ := row[1].(string)
		if _, ok := byKey[from]; !ok {
			continue
		}
		if _, ok := byKey[to]; !ok {
			continue
		}
		deps[from] = append(deps[from], to)
	}

	ordered, err := topoSort(ops, deps)
	if err != nil {
		return nil, err
	}
	return &Plan{Ops: ordered}, nil
}

func rowToStagedEntity(row []any) isg.Entity {
	get := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		if s, ok := row[i].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", row[i])
	}
	getInt := func(i int) int {
		if i >= len(row) || row[i] == nil {
			return 0
		}
		switch v := row[i].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return 0
	}
	e := isg.Entity{
		Key:       get(0),
		Kind:      isg.Kind(get(1)),
		Language:  isg.Language(get(2)),
		FilePath:  get(3),
		StartLine: getInt(4),
		EndLine:   getInt(5),
		Name:      get(6),
	}
	if fa := get(7); fa != "" {
		action := isg.FutureAction(fa)
		e.FutureAction = &action
	}
	return e
}

// topoSort orders ops so that a producer (a dependency) precedes its
// consumers, using Kahn's algorithm. A cycle breaks the tie by
// (file_path, start_line) among whichever nodes remain in the cycle,
// rather than failing the whole plan - apply order among cyclic entities
// has no single correct answer, so determinism matters more than a
// specific choice.
func topoSort(ops []Op, deps map[string][]string) ([]Op, error) {
	byKey := make(map[string]Op, len(ops))
	indegree := make(map[string]int, len(ops))
	for _, op := range ops {
		byKey[op.Entity.Key] = op
		indegree[op.Entity.Key] = 0
	}
	// edge A->B (A depends on B) means B must be applied before A:
	// indegree counts how many not-yet-applied dependencies an op has.
	for from, tos := range deps {
		for _, to := range tos {
			if _, ok := byKey[to]; !ok {
				continue
			}
			indegree[from]++
		}
	}

	deterministic := func(keys []string) {
		sort.Slice(keys, func(i, j int) bool {
			a, b := byKey[keys[i]].Entity, byKey[keys[j]].Entity
			if a.FilePath != b.FilePath {
				return a.FilePath < b.FilePath
			}
			return a.StartLine < b.StartLine
		})
	}

	var ready []string
	for key, deg := range indegree {
		if deg == 0 {
			ready = append(ready, key)
		}
	}
	deterministic(ready)

	var ordered []Op
	visited := make(map[string]bool, len(ops))
	for len(ready) > 0 {
		deterministic(ready)
		key := ready[0]
		ready = ready[1:]
		if visited[key] {
			continue
		}
		visited[key] = true
		ordered = append(ordered, byKey[key])

		for from, tos := range deps {
			if visited[from] {
				continue
			}
			for _, to := range tos {
				if to != key {
					continue
				}
				indegree[from]--
				if indegree[from] == 0 {
					ready = append(ready, from)
				}
			}
		}
	}

	if len(ordered) < len(ops) {
		// A cycle remains among unvisited ops; append them in the
		// deterministic (file_path, start_line) tie-break so the plan
		// still has a total, reproducible order.
		var remaining []string
		for key := range byKey {
			if !visited[key] {
				remaining = append(remaining, key)
			}
		}
		deterministic(remaining)
		for _, key := range remaining {
			ordered = append(ordered, byKey[key])
		}
	}

	return ordered, nil
}
