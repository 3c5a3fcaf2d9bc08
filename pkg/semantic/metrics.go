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

package semantic

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSemantic holds Prometheus metrics for the embedding subsystem.
// Kept separate from pkg/ingestion's metrics since a Generator can run
// outside a full ingestion pass (backfill, reindex of a single project).
type metricsSemantic struct {
	once sync.Once

	embedComputed prometheus.Counter
	embedErrors   prometheus.Counter
	embedRetries  prometheus.Counter
	embedTruncated prometheus.Counter
}

var semMetrics metricsSemantic

func (m *metricsSemantic) init() {
	m.once.Do(func() {
		m.embedComputed = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_semantic_embeddings_computed_total", Help: "Embeddings computed"})
		m.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_semantic_embeddings_errors_total", Help: "Embedding provider errors after retries exhausted"})
		m.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_semantic_embeddings_retries_total", Help: "Embedding provider call retries"})
		m.embedTruncated = prometheus.NewCounter(prometheus.CounterOpts{Name: "parseltongue_semantic_embeddings_truncated_total", Help: "Entity texts truncated before embedding"})

		prometheus.MustRegister(m.embedComputed, m.embedErrors, m.embedRetries, m.embedTruncated)
	})
}

func recordEmbedComputed() { semMetrics.init(); semMetrics.embedComputed.Inc() }
func recordEmbedError()    { semMetrics.init(); semMetrics.embedErrors.Inc() }
func recordEmbedRetry()    { semMetrics.init(); semMetrics.embedRetries.Inc() }
func recordEmbedTruncated() { semMetrics.init(); semMetrics.embedTruncated.Inc() }
