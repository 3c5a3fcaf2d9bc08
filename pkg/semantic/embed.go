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
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/parseltongue/parseltongue/pkg/isg"
)

// Embedded pairs an entity key with the embedding computed for its
// CurrentCode, ready to hand to storage for persistence in
// isg_entity_embedding.
type Embedded struct {
	Key       string
	Embedding []float32
}

// Generator computes embeddings for a batch of entities with bounded
// concurrency and classified retry (network/5xx/429 errors retry,
// everything else fails fast).
type Generator struct {
	provider Provider
	model    string
	workers  int
	logger   *slog.Logger
	retry    RetryConfig
}

// NewGenerator creates a Generator. model is stored on the Generator but
// not attached to its results; Index records its own model name with each
// row it writes to isg_entity_embedding.
func NewGenerator(provider Provider, model string, workers int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Generator{provider: provider, model: model, workers: workers, logger: logger, retry: defaultRetryConfig()}
}

func (g *Generator) SetRetryConfig(cfg RetryConfig) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = 2.0
	}
	g.retry = cfg
}

// Result reports how an embedding batch went; never a fatal error, since a
// handful of provider failures shouldn't abort an ingestion run.
type Result struct {
	Embedded       []Embedded
	ErrorCount     int
	TruncatedCount int
}

const maxEmbedChars = 2000

// EmbedEntities embeds each entity's CurrentCode (skipping entities with no
// current code - a pure Create that hasn't been materialized yet).
func (g *Generator) EmbedEntities(ctx context.Context, entities []isg.Entity) (*Result, error) {
	texts := make([]string, 0, len(entities))
	keys := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.CurrentCode == nil || *e.CurrentCode == "" {
			continue
		}
		keys = append(keys, e.Key)
		texts = append(texts, *e.CurrentCode)
	}

	if len(texts) == 0 {
		return &Result{}, nil
	}
	if g.workers <= 1 {
		return g.embedSequential(ctx, keys, texts)
	}
	return g.embedParallel(ctx, keys, texts)
}

func (g *Generator) embedSequential(ctx context.Context, keys, texts []string) (*Result, error) {
	result := &Result{Embedded: make([]Embedded, 0, len(texts))}
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vec, truncated, err := g.embedOne(ctx, keys[i], text)
		if err != nil {
			result.ErrorCount++
		}
		if truncated {
			result.TruncatedCount++
		}
		result.Embedded = append(result.Embedded, Embedded{Key: keys[i], Embedding: vec})
	}
	return result, nil
}

func (g *Generator) embedParallel(ctx context.Context, keys, texts []string) (*Result, error) {
	jobs := make(chan int, len(texts))
	type out struct {
		key       string
		embedding []float32
		err       bool
		truncated bool
	}
	results := make(chan out, len(texts))

	var wg sync.WaitGroup
	var errorCount, truncatedCount int32
	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				vec, truncated, err := g.embedOne(ctx, keys[i], texts[i])
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
				}
				if truncated {
					atomic.AddInt32(&truncatedCount, 1)
				}
				results <- out{key: keys[i], embedding: vec, err: err != nil, truncated: truncated}
			}
		}()
	}

	for i := range texts {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	embedded := make([]Embedded, 0, len(texts))
	for r := range results {
		embedded = append(embedded, Embedded{Key: r.key, Embedding: r.embedding})
	}

	return &Result{Embedded: embedded, ErrorCount: int(errorCount), TruncatedCount: int(truncatedCount)}, nil
}

// embedOne embeds a single text with retry, returning an empty vector
// (never a nil one) on exhausted retries so callers can persist a
// placeholder rather than special-case failures downstream.
func (g *Generator) embedOne(ctx context.Context, key, text string) ([]float32, bool, error) {
	truncated := false
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
		truncated = true
	}

	var embedding []float32
	var err error
	for attempt := 0; attempt < g.retry.MaxRetries; attempt++ {
		embedding, err = g.provider.Embed(ctx, text)
		if err == nil {
			break
		}
		if !isRetryableError(err) || attempt == g.retry.MaxRetries-1 {
			break
		}
		recordEmbedRetry()
		sleep := computeBackoffWithJitter(g.retry.InitialBackoff, attempt, g.retry.Multiplier, g.retry.MaxBackoff)
		g.logger.Warn("semantic.embed.retry", "key", key, "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "err", err)
		select {
		case <-ctx.Done():
			return nil, truncated, ctx.Err()
		case <-time.After(sleep):
		}
	}

	if err != nil {
		recordEmbedError()
		g.logger.Error("semantic.embed.failed", "key", key, "err", err)
		embedding = []float32{}
	} else {
		recordEmbedComputed()
	}
	if truncated {
		recordEmbedTruncated()
	}
	return embedding, truncated, err
}
