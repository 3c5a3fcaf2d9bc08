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
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/parseltongue/parseltongue/pkg/storage"
)

// Index backfills and searches the isg_entity_embedding side table that
// storage.EmbeddedBackend.EnsureSchema creates.
type Index struct {
	backend storage.Backend
	model   string
}

// NewIndex binds an Index to a backend and the model name embeddings
// should be tagged with.
func NewIndex(backend storage.Backend, model string) *Index {
	return &Index{backend: backend, model: model}
}

// Upsert persists a batch of computed embeddings.
func (idx *Index) Upsert(ctx context.Context, embedded []Embedded) error {
	if len(embedded) == 0 {
		return nil
	}
	rows := make([]storage.EmbeddingRow, 0, len(embedded))
	for _, e := range embedded {
		if len(e.Embedding) == 0 {
			continue
		}
		vecJSON, err := json.Marshal(e.Embedding)
		if err != nil {
			return fmt.Errorf("semantic: marshal embedding for %s: %w", e.Key, err)
		}
		rows = append(rows, storage.EmbeddingRow{Key: e.Key, Model: idx.model, EmbeddingJSON: string(vecJSON)})
	}
	if len(rows) == 0 {
		return nil
	}
	return idx.backend.UpsertEmbeddings(ctx, rows)
}

// ScoredKey pairs an entity key with its cosine similarity to a query
// vector.
type ScoredKey struct {
	Key   string
	Score float64
}

// Search embeds query with provider, then ranks every stored embedding for
// idx.model by cosine similarity (brute force; spec §10 treats similarity
// search as a best-effort convenience, not a core query path, so no ANN
// index is required).
func (idx *Index) Search(ctx context.Context, provider Provider, query string, k int) ([]ScoredKey, error) {
	queryVec, err := provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}

	result, err := idx.backend.Query(ctx, fmt.Sprintf(`
?[key, embedding_json] := *isg_entity_embedding{key, model, embedding_json}, model = %q
`, idx.model))
	if err != nil {
		return nil, fmt.Errorf("semantic: scan embeddings: %w", err)
	}

	keyIdx, vecIdx := -1, -1
	for i, h := range result.Headers {
		switch h {
		case "key":
			keyIdx = i
		case "embedding_json":
			vecIdx = i
		}
	}
	if keyIdx < 0 || vecIdx < 0 {
		return nil, fmt.Errorf("semantic: unexpected query result shape")
	}

	scored := make([]ScoredKey, 0, len(result.Rows))
	for _, row := range result.Rows {
		key, _ := row[keyIdx].(string)
		vecJSON, _ := row[vecIdx].(string)
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			continue
		}
		scored = append(scored, ScoredKey{Key: key, Score: cosineSimilarity(queryVec, vec)})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 32; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
