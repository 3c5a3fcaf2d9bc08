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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion subsystem.
type metricsIngestion struct {
	once sync.Once

	filesAttempted prometheus.Counter
	filesParsed    prometheus.Counter
	filesFailed    prometheus.Counter

	entitiesCreated prometheus.Counter
	entitiesUpdated prometheus.Counter
	entitiesDeleted prometheus.Counter

	edgesResolved   prometheus.Counter
	edgesUnresolved prometheus.Counter

	batchesApplied prometheus.Counter
	keyCollisions  prometheus.Counter

	parseDuration  prometheus.Histogram
	resolveDuration prometheus.Histogram
	embedDuration  prometheus.Histogram
	writeDuration  prometheus.Histogram
	totalDuration  prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesAttempted = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_files_attempted_total", Help: "Files submitted for parsing"})
		m.filesParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_files_parsed_total", Help: "Files parsed successfully"})
		m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_files_failed_total", Help: "Files that failed to parse"})

		m.entitiesCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_entities_created_total", Help: "Entities newly staged as Create"})
		m.entitiesUpdated = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_entities_updated_total", Help: "Entities staged as Edit"})
		m.entitiesDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_entities_deleted_total", Help: "Entities staged as Delete"})

		m.edgesResolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_edges_resolved_total", Help: "References resolved to a known entity key"})
		m.edgesUnresolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_edges_unresolved_total", Help: "References left pointing at a textual, unresolved target"})

		m.batchesApplied = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_batches_applied_total", Help: "Datalog batches applied to the backend"})
		m.keyCollisions = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_ingestion_key_collisions_total", Help: "Deterministic key collisions resolved by salting"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "parseltongue_ingestion_parse_seconds", Help: "Duration of the parse stage", Buckets: buckets})
		m.resolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "parseltongue_ingestion_resolve_seconds", Help: "Duration of the edge resolution stage", Buckets: buckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "parseltongue_ingestion_embed_seconds", Help: "Duration of the embedding stage", Buckets: buckets})
		m.writeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "parseltongue_ingestion_write_seconds", Help: "Duration of the backend write stage", Buckets: buckets})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "parseltongue_ingestion_total_seconds", Help: "Duration of a full ingestion run", Buckets: buckets})

		prometheus.MustRegister(
			m.filesAttempted, m.filesParsed, m.filesFailed,
			m.entitiesCreated, m.entitiesUpdated, m.entitiesDeleted,
			m.edgesResolved, m.edgesUnresolved,
			m.batchesApplied, m.keyCollisions,
			m.parseDuration, m.resolveDuration, m.embedDuration, m.writeDuration, m.totalDuration,
		)
	})
}
