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

package ingestion

import (
	"context"
	"fmt"

	"github.com/parseltongue/parseltongue/pkg/storage"
)

// ResetReport summarizes a completed Reset run.
type ResetReport struct {
	EntitiesPromoted int
	EntitiesDeleted  int
	EdgesRemoved     int
	Reingested       bool
	Ingestion        *IngestionResult
}

// Reset promotes every staged entity's future state to current (spec.md
// §4.8): a Create becomes a live current entity, an Edit overwrites
// current_code, a Delete removes the entity and its incident edges. Every
// remaining entity's future_ind is reset to match current_ind and its
// future_action/future_code are cleared, so the staged set starts empty
// again.
//
// The promotion above is the reingest=false path. When reingest is true,
// no promotion runs: the entity/edge/embedding tables are truncated and
// pipeline.Run rebuilds the graph from the project root from scratch, so
// staged future state is discarded and the graph reflects the files on
// disk.
func Reset(ctx context.Context, backend storage.Backend, pipeline *Pipeline, reingest bool) (*ResetReport, error) {
	report := &ResetReport{}

	if reingest {
		if pipeline == nil {
			return nil, fmt.Errorf("reset: reingest requested but no pipeline configured")
		}
		if err := truncateAll(ctx, backend); err != nil {
			return nil, fmt.Errorf("reset: truncate: %w", err)
		}
		result, err := pipeline.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("reset: reingest: %w", err)
		}
		report.Reingested = true
		report.Ingestion = result
		return report, nil
	}

	if err := promoteStaged(ctx, backend, report); err != nil {
		return nil, fmt.Errorf("reset: promote: %w", err)
	}
	if err := clearFutureFields(ctx, backend); err != nil {
		return nil, fmt.Errorf("reset: clear future fields: %w", err)
	}
	return report, nil
}

func promoteStaged(ctx context.Context, backend storage.Backend, report *ResetReport) error {
	res, err := backend.Query(ctx, `?[key, future_action, future_code] :=
		*isg_entity{key, future_action, future_code}, future_action != null`)
	if err != nil {
		return fmt.Errorf("scan staged entities: %w", err)
	}

	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		key, _ := row[0].(string)
		action, _ := row[1].(string)
		switch action {
		case "Delete":
			if err := deleteEntity(ctx, backend, key); err != nil {
				return err
			}
			report.EntitiesDeleted++
		case "Create", "Edit":
			code := ""
			if len(row) > 2 {
				if s, ok := row[2].(string); ok {
					code = s
				}
			}
			if err := backend.Execute(ctx, fmt.Sprintf(`?[key, current_code, current_ind] <- [[%q, %q, true]]
				:update isg_entity {key => current_code, current_ind}`, key, code)); err != nil {
				return fmt.Errorf("promote %s: %w", key, err)
			}
			report.EntitiesPromoted++
		}
	}
	return nil
}

func deleteEntity(ctx context.Context, backend storage.Backend, key string) error {
	if err := backend.Execute(ctx, fmt.Sprintf(`?[key] <- [[%q]] :rm isg_entity {key}`, key)); err != nil {
		return fmt.Errorf("remove entity %s: %w", key, err)
	}
	if err := backend.Execute(ctx, fmt.Sprintf(`?[from_key, to_key, edge_type] :=
		*isg_edge{from_key, to_key, edge_type}, from_key = %q or to_key = %q
		:rm isg_edge {from_key, to_key, edge_type}`, key, key)); err != nil {
		return fmt.Errorf("remove incident edges for %s: %w", key, err)
	}
	return nil
}

func clearFutureFields(ctx context.Context, backend storage.Backend) error {
	return backend.Execute(ctx, `?[key, future_ind, future_action, future_code] :=
		*isg_entity{key, current_ind}, future_ind = current_ind, future_action = null, future_code = null
		:update isg_entity {key => future_ind, future_action, future_code}`)
}

// truncateAll removes every row from the ISG tables so a subsequent
// pipeline.Run starts from an empty graph.
func truncateAll(ctx context.Context, backend storage.Backend) error {
	for _, rel := range []string{"isg_entity", "isg_edge", "isg_entity_embedding"} {
		if err := backend.Execute(ctx, fmt.Sprintf(`::remove %s`, rel)); err != nil {
			return fmt.Errorf("drop %s: %w", rel, err)
		}
	}
	if eb, ok := backend.(*storage.EmbeddedBackend); ok {
		if err := eb.EnsureSchema(); err != nil {
			return fmt.Errorf("recreate schema: %w", err)
		}
		if err := eb.CreateIndexes(); err != nil {
			return fmt.Errorf("recreate indexes: %w", err)
		}
	}
	return nil
}
