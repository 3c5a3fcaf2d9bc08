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
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/semantic"
	"github.com/parseltongue/parseltongue/pkg/storage"
)

func readSourceFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Pipeline orchestrates a full ingestion run: load, parse, resolve, embed
// (optional), commit (spec §4.4's six steps).
type Pipeline struct {
	config        Config
	logger        *slog.Logger
	repoLoader    *RepoLoader
	parser        CodeParser
	backend       storage.Backend
	checkpointMgr *CheckpointManager
	batcher       *Batcher
	embedGen      *semantic.Generator
	embedIndex    *semantic.Index
}

// IngestionResult summarizes a completed run.
type IngestionResult struct {
	ProjectID string
	RunID     string

	FilesAttempted int
	FilesSucceeded int
	FilesFailed    int

	EntitiesCreated int
	EdgesResolved   int
	EdgesUnresolved int

	EmbeddingsComputed int
	EmbeddingErrors    int
	CodeTextTruncated  int

	SkipReasons map[string]int

	ParseDuration   time.Duration
	ResolveDuration time.Duration
	EmbedDuration   time.Duration
	WriteDuration   time.Duration
	TotalDuration   time.Duration
}

// NewPipeline wires a parser, resolver, embedding generator (if configured)
// and storage backend into a runnable ingestion pipeline.
func NewPipeline(config Config, backend storage.Backend, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parser := NewTreeSitterParser()
	if config.Ingestion.MaxCodeTextSize > 0 {
		parser.SetMaxCodeTextSize(config.Ingestion.MaxCodeTextSize)
	}

	p := &Pipeline{
		config:        config,
		logger:        logger,
		repoLoader:    NewRepoLoader(logger),
		parser:        parser,
		backend:       backend,
		checkpointMgr: NewCheckpointManager(""),
		batcher:       NewBatcher(500, 2*1024*1024),
	}

	if config.Ingestion.EmbedEntities {
		provider, err := semantic.CreateProvider("mock", logger)
		if err != nil {
			return nil, fmt.Errorf("create embedding provider: %w", err)
		}
		p.embedGen = semantic.NewGenerator(provider, "mock", parallelWorkers(), logger)
		p.embedIndex = semantic.NewIndex(backend, "mock")
	}

	return p, nil
}

// Close releases resources held by the pipeline (temp clone directories).
func (p *Pipeline) Close() error {
	if p.repoLoader != nil {
		return p.repoLoader.Close()
	}
	return nil
}

func parallelWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Pipeline) generateRunID(startTime time.Time) string {
	return fmt.Sprintf("run-%s-%d", p.config.ProjectID, startTime.Unix())
}

type parseOutcome struct {
	entities []isg.Entity
	imports  []isg.Edge
	refs     []UnresolvedRef
	byFile   map[string]string // entity key -> file path
	pkgNames map[string]string // file path -> package name
}

// Run executes the full ingestion pipeline (spec §4.4):
//  1. enumerate source files, honoring exclude globs and size limits
//  2. dispatch each file to the parser pool, extracting entities + refs
//  3. assign deterministic keys (done inline during parse, via KeyBuilder)
//  4. resolve references into edges, same-package/project-wide/unresolved
//  5. optionally backfill embeddings
//  6. commit entities and edges to storage in batches, then emit run statistics
func (p *Pipeline) Run(ctx context.Context) (*IngestionResult, error) {
	startTime := time.Now()
	runID := p.generateRunID(startTime)
	p.logger.Info("ingestion.run.start", "project_id", p.config.ProjectID, "run_id", runID)

	loadResult, err := p.repoLoader.LoadRepository(p.config.RepoSource, p.config.Ingestion.ExcludeGlobs, p.config.Ingestion.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("load repository: %w", err)
	}
	sort.Slice(loadResult.Files, func(i, j int) bool { return loadResult.Files[i].Path < loadResult.Files[j].Path })

	parseStart := time.Now()
	outcome, filesSucceeded, filesFailed := p.parseFiles(ctx, loadResult.Files)
	parseDuration := time.Since(parseStart)

	resolveStart := time.Now()
	resolver := NewEdgeResolver()
	resolver.BuildIndex(outcome.entities, outcome.imports, map[string]string{}, outcome.pkgNames)
	resolvedEdges := resolver.ResolveRefs(outcome.refs, outcome.byFile)
	allEdges := append(outcome.imports, resolvedEdges...)
	resolveDuration := time.Since(resolveStart)

	knownKeys := make(map[string]bool, len(outcome.entities))
	for _, e := range outcome.entities {
		knownKeys[e.Key] = true
	}
	edgesUnresolved := 0
	for _, e := range allEdges {
		if !knownKeys[e.ToKey] {
			edgesUnresolved++
		}
	}

	embedDuration := time.Duration(0)
	embeddingsComputed, embeddingErrors, codeTextTruncated := 0, 0, p.parser.GetTruncatedCount()
	if p.embedGen != nil {
		embedStart := time.Now()
		embedResult, err := p.embedGen.EmbedEntities(ctx, outcome.entities)
		if err != nil {
			return nil, fmt.Errorf("generate embeddings: %w", err)
		}
		if err := p.embedIndex.Upsert(ctx, embedResult.Embedded); err != nil {
			return nil, fmt.Errorf("persist embeddings: %w", err)
		}
		embeddingsComputed = len(embedResult.Embedded) - embedResult.ErrorCount
		embeddingErrors = embedResult.ErrorCount
		codeTextTruncated += embedResult.TruncatedCount
		embedDuration = time.Since(embedStart)
	}

	writeStart := time.Now()
	if err := p.commit(ctx, outcome.entities, allEdges); err != nil {
		return nil, fmt.Errorf("commit to store: %w", err)
	}
	writeDuration := time.Since(writeStart)

	result := &IngestionResult{
		ProjectID:          p.config.ProjectID,
		RunID:              runID,
		FilesAttempted:     len(loadResult.Files),
		FilesSucceeded:     filesSucceeded,
		FilesFailed:        filesFailed,
		EntitiesCreated:    len(outcome.entities),
		EdgesResolved:      len(allEdges) - edgesUnresolved,
		EdgesUnresolved:    edgesUnresolved,
		EmbeddingsComputed: embeddingsComputed,
		EmbeddingErrors:    embeddingErrors,
		CodeTextTruncated:  codeTextTruncated,
		SkipReasons:        loadResult.SkipReasons,
		ParseDuration:      parseDuration,
		ResolveDuration:    resolveDuration,
		EmbedDuration:      embedDuration,
		WriteDuration:      writeDuration,
		TotalDuration:      time.Since(startTime),
	}

	ingMetrics.init()
	ingMetrics.filesAttempted.Add(float64(result.FilesAttempted))
	ingMetrics.filesParsed.Add(float64(result.FilesSucceeded))
	ingMetrics.filesFailed.Add(float64(result.FilesFailed))
	ingMetrics.entitiesCreated.Add(float64(result.EntitiesCreated))
	ingMetrics.edgesResolved.Add(float64(result.EdgesResolved))
	ingMetrics.edgesUnresolved.Add(float64(result.EdgesUnresolved))
	ingMetrics.parseDuration.Observe(parseDuration.Seconds())
	ingMetrics.resolveDuration.Observe(resolveDuration.Seconds())
	ingMetrics.embedDuration.Observe(embedDuration.Seconds())
	ingMetrics.writeDuration.Observe(writeDuration.Seconds())
	ingMetrics.totalDuration.Observe(result.TotalDuration.Seconds())

	p.logger.Info("ingestion.run.complete",
		"project_id", p.config.ProjectID, "run_id", runID,
		"files_succeeded", result.FilesSucceeded, "files_failed", result.FilesFailed,
		"entities", result.EntitiesCreated, "edges_resolved", result.EdgesResolved,
		"edges_unresolved", result.EdgesUnresolved, "total_duration_ms", result.TotalDuration.Milliseconds(),
	)

	return result, nil
}

func (p *Pipeline) parseFiles(ctx context.Context, files []FileInfo) (*parseOutcome, int, int) {
	out := &parseOutcome{byFile: make(map[string]string), pkgNames: make(map[string]string)}
	if len(files) == 0 {
		return out, 0, 0
	}

	workers := parallelWorkers()
	if !p.config.Ingestion.Parallel || len(files) < p.config.Ingestion.ParallelThreshold || workers <= 1 {
		return p.parseFilesSequential(ctx, files, out)
	}
	return p.parseFilesParallel(ctx, files, workers, out)
}

func (p *Pipeline) parseFilesSequential(ctx context.Context, files []FileInfo, out *parseOutcome) (*parseOutcome, int, int) {
	succeeded, failed := 0, 0
	for _, f := range files {
		select {
		case <-ctx.Done():
			return out, succeeded, failed
		default:
		}
		pr, err := p.parseOne(f)
		if err != nil {
			failed++
			p.logger.Warn("ingestion.parse.error", "path", f.Path, "err", err)
			continue
		}
		succeeded++
		mergeParseResult(out, pr)
	}
	return out, succeeded, failed
}

func (p *Pipeline) parseFilesParallel(ctx context.Context, files []FileInfo, workers int, out *parseOutcome) (*parseOutcome, int, int) {
	jobs := make(chan int, len(files))
	type result struct {
		pr  *ParseResult
		err error
	}
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				pr, err := p.parseOne(files[i])
				results <- result{pr: pr, err: err}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	var succeeded, failed int32
	for r := range results {
		if r.err != nil {
			atomic.AddInt32(&failed, 1)
			p.logger.Warn("ingestion.parse.error", "err", r.err)
			continue
		}
		atomic.AddInt32(&succeeded, 1)
		mergeParseResult(out, r.pr)
	}
	return out, int(succeeded), int(failed)
}

func (p *Pipeline) parseOne(f FileInfo) (*ParseResult, error) {
	source, err := readSourceFile(f.FullPath)
	if err != nil {
		return nil, err
	}
	return p.parser.ParseFile(f, source)
}

func mergeParseResult(out *parseOutcome, pr *ParseResult) {
	out.entities = append(out.entities, pr.Entities...)
	out.imports = append(out.imports, pr.Imports...)
	out.refs = append(out.refs, pr.UnresolvedRefs...)
	for _, e := range pr.Entities {
		out.byFile[e.Key] = e.FilePath
	}
	if pr.PackageName != "" {
		out.pkgNames[pr.FilePath] = pr.PackageName
	}
}

// commit writes entities and edges in batches bounded by p.batcher's
// target mutation count, so a single run never holds one giant
// transaction against the store.
func (p *Pipeline) commit(ctx context.Context, entities []isg.Entity, edges []isg.Edge) error {
	size := p.batcher.TargetMutations()
	for _, chunk := range chunkEntities(entities, size) {
		if err := p.backend.UpsertEntities(ctx, chunk); err != nil {
			return err
		}
		ingMetrics.init()
		ingMetrics.batchesApplied.Inc()
	}
	for _, chunk := range chunkEdges(edges, size) {
		if err := p.backend.UpsertEdges(ctx, chunk); err != nil {
			return err
		}
		ingMetrics.init()
		ingMetrics.batchesApplied.Inc()
	}
	return nil
}

func chunkEntities(entities []isg.Entity, size int) [][]isg.Entity {
	var out [][]isg.Entity
	for size > 0 && len(entities) > 0 {
		if len(entities) <= size {
			out = append(out, entities)
			break
		}
		out = append(out, entities[:size])
		entities = entities[size:]
	}
	return out
}

func chunkEdges(edges []isg.Edge, size int) [][]isg.Edge {
	var out [][]isg.Edge
	for size > 0 && len(edges) > 0 {
		if len(edges) <= size {
			out = append(out, edges)
			break
		}
		out = append(out, edges[:size])
		edges = edges[size:]
	}
	return out
}
