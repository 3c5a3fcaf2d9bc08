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

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parseltongue/parseltongue/pkg/isg"
	"github.com/parseltongue/parseltongue/pkg/isgdb"
)

// EmbeddedBackend implements Backend using a local isgdb instance. This is
// the default backend for standalone use; spec §6 requires only one writer
// at a time, so mutations take the exclusive lock while queries share it.
type EmbeddedBackend struct {
	db     *isgdb.DB
	mu     sync.RWMutex
	closed bool
}

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// DataDir is the directory where the store keeps its data.
	// Defaults to ~/.parseltongue/data/<project_id>.
	DataDir string

	// Engine is the storage engine: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb" for persistence.
	Engine string

	// ProjectID namespaces the data directory.
	ProjectID string
}

// NewEmbeddedBackend opens (creating if necessary) an embedded store.
func NewEmbeddedBackend(config EmbeddedConfig) (*EmbeddedBackend, error) {
	if config.Engine == "" {
		config.Engine = "rocksdb"
	}
	if config.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		config.DataDir = filepath.Join(homeDir, ".parseltongue", "data")
		if config.ProjectID != "" {
			config.DataDir = filepath.Join(config.DataDir, config.ProjectID)
		}
	}

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := isgdb.Open(config.Engine, config.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open isgdb: %w", err)
	}

	return &EmbeddedBackend{db: db}, nil
}

// Query executes a read-only Datalog query.
func (b *EmbeddedBackend) Query(ctx context.Context, datalog string) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(datalog, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return FromNamedRows(result), nil
}

// Execute runs a Datalog mutation.
func (b *EmbeddedBackend) Execute(ctx context.Context, datalog string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := b.db.Run(datalog, nil)
	if err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}
	return nil
}

// Close closes the database connection. Safe to call more than once.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.db.Close()
	return nil
}

// DB returns the underlying isgdb instance for advanced operations. Use
// with caution; prefer the Backend interface methods for normal operations.
func (b *EmbeddedBackend) DB() *isgdb.DB {
	return b.db
}

// EnsureSchema creates the ISG tables if they don't exist. Idempotent.
func (b *EmbeddedBackend) EnsureSchema() error {
	tables := []string{
		`:create isg_entity {
			key: String =>
			kind: String,
			language: String,
			file_path: String,
			start_line: Int,
			end_line: Int,
			byte_start: Int,
			byte_end: Int,
			name: String,
			signature_json: String,
			is_public: Bool,
			is_async: Bool,
			is_unsafe: Bool,
			is_test: Bool,
			is_generated: Bool,
			cyclomatic_complexity: Int? = null,
			current_code: String? = null,
			future_code: String? = null,
			current_ind: Bool,
			future_ind: Bool,
			future_action: String? = null,
			last_modified: Float
		}`,
		`:create isg_edge {
			from_key: String,
			to_key: String,
			edge_type: String =>
			current_ind: Bool,
			future_ind: Bool,
			future_action: String? = null,
			line_number: Int? = null,
			strength: Float
		}`,
		`:create isg_entity_embedding {
			key: String =>
			model: String,
			embedding_json: String
		}`,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, table := range tables {
		if _, err := b.db.Run(table, nil); err != nil {
			// :create is not idempotent upstream; tolerate "already exists".
			continue
		}
	}
	return nil
}

// CreateIndexes creates the secondary indexes required by pkg/query's
// Level 0/1/2 scans: file_path, kind, language, the temporal triple, and
// is_public.
func (b *EmbeddedBackend) CreateIndexes() error {
	indexes := []string{
		`::index create isg_entity:by_file_path { file_path }`,
		`::index create isg_entity:by_kind { kind }`,
		`::index create isg_entity:by_language { language }`,
		`::index create isg_entity:by_temporal { current_ind, future_ind, future_action }`,
		`::index create isg_entity:by_visibility { is_public }`,
		`::index create isg_edge:by_from { from_key }`,
		`::index create isg_edge:by_to { to_key }`,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, idx := range indexes {
		if _, err := b.db.Run(idx, nil); err != nil {
			continue
		}
	}
	return nil
}

// UpsertEntities writes entities in a single transaction, keyed on Key.
func (b *EmbeddedBackend) UpsertEntities(ctx context.Context, entities []isg.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		sigJSON, err := json.Marshal(e.Signature)
		if err != nil {
			return fmt.Errorf("marshal signature for %s: %w", e.Key, err)
		}
		row := map[string]any{
			"key":             e.Key,
			"kind":            string(e.Kind),
			"language":        string(e.Language),
			"file_path":       e.FilePath,
			"start_line":      e.StartLine,
			"end_line":        e.EndLine,
			"byte_start":      e.ByteRange.Start,
			"byte_end":        e.ByteRange.End,
			"name":            e.Name,
			"signature_json":  string(sigJSON),
			"is_public":       e.IsPublic,
			"is_async":        e.IsAsync,
			"is_unsafe":       e.IsUnsafe,
			"is_test":         e.IsTest,
			"is_generated":    e.IsGenerated,
			"current_ind":     e.CurrentInd,
			"future_ind":      e.FutureInd,
			"last_modified":   float64(e.LastModified.Unix()),
		}
		if e.CyclomaticComplexity != nil {
			row["cyclomatic_complexity"] = *e.CyclomaticComplexity
		}
		if e.CurrentCode != nil {
			row["current_code"] = *e.CurrentCode
		}
		if e.FutureCode != nil {
			row["future_code"] = *e.FutureCode
		}
		if e.FutureAction != nil {
			row["future_action"] = string(*e.FutureAction)
		}
		rows = append(rows, row)
	}

	script := `?[key, kind, language, file_path, start_line, end_line, byte_start, byte_end,
		name, signature_json, is_public, is_async, is_unsafe, is_test, is_generated,
		cyclomatic_complexity, current_code, future_code, current_ind, future_ind,
		future_action, last_modified] <- $rows
		:put isg_entity {
			key, kind, language, file_path, start_line, end_line, byte_start, byte_end,
			name, signature_json, is_public, is_async, is_unsafe, is_test, is_generated,
			cyclomatic_complexity, current_code, future_code, current_ind, future_ind,
			future_action, last_modified
		}`

	_, err := b.db.Run(script, map[string]any{"rows": toRowSlice(rows)})
	if err != nil {
		return fmt.Errorf("upsert entities: %w", err)
	}
	return nil
}

// UpsertEdges writes edges in a single transaction, keyed on
// (from_key, to_key, edge_type).
func (b *EmbeddedBackend) UpsertEdges(ctx context.Context, edges []isg.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		var futureAction, lineNumber any
		if e.FutureAction != nil {
			futureAction = string(*e.FutureAction)
		}
		if e.LineNumber != nil {
			lineNumber = *e.LineNumber
		}
		rows = append(rows, []any{e.FromKey, e.ToKey, string(e.EdgeType), e.CurrentInd, e.FutureInd, futureAction, lineNumber, e.Strength})
	}

	script := `?[from_key, to_key, edge_type, current_ind, future_ind, future_action, line_number, strength] <- $rows
		:put isg_edge { from_key, to_key, edge_type, current_ind, future_ind, future_action, line_number, strength }`

	_, err := b.db.Run(script, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("upsert edges: %w", err)
	}
	return nil
}

// UpsertEmbeddings writes a batch of entity embeddings, keyed on Key.
func (b *EmbeddedBackend) UpsertEmbeddings(ctx context.Context, rows []EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{r.Key, r.Model, r.EmbeddingJSON})
	}

	script := `?[key, model, embedding_json] <- $rows
		:put isg_entity_embedding { key, model, embedding_json }`

	_, err := b.db.Run(script, map[string]any{"rows": data})
	if err != nil {
		return fmt.Errorf("upsert embeddings: %w", err)
	}
	return nil
}

// GetEntity returns the entity stored under key.
func (b *EmbeddedBackend) GetEntity(ctx context.Context, key string) (*isg.Entity, error) {
	result, err := b.Query(ctx, fmt.Sprintf(`?[key, kind, language, file_path, start_line, end_line,
		byte_start, byte_end, name, signature_json, is_public, is_async, is_unsafe, is_test,
		is_generated, cyclomatic_complexity, current_code, future_code, current_ind, future_ind,
		future_action, last_modified] := *isg_entity{key: %q, kind, language, file_path, start_line,
		end_line, byte_start, byte_end, name, signature_json, is_public, is_async, is_unsafe,
		is_test, is_generated, cyclomatic_complexity, current_code, future_code, current_ind,
		future_ind, future_action, last_modified}`, key))
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToEntity(result.Headers, result.Rows[0])
}

// Snapshot writes a consistent copy of the store to outPath.
func (b *EmbeddedBackend) Snapshot(ctx context.Context, outPath string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	return b.db.Backup(outPath)
}

// Restore replaces the store's contents with a prior Snapshot.
func (b *EmbeddedBackend) Restore(ctx context.Context, inPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	return b.db.Restore(inPath)
}

func toRowSlice(rows []map[string]any) [][]any {
	out := make([][]any, len(rows))
	cols := []string{"key", "kind", "language", "file_path", "start_line", "end_line", "byte_start",
		"byte_end", "name", "signature_json", "is_public", "is_async", "is_unsafe", "is_test",
		"is_generated", "cyclomatic_complexity", "current_code", "future_code", "current_ind",
		"future_ind", "future_action", "last_modified"}
	for i, r := range rows {
		row := make([]any, 0, len(r))
		for _, c := range cols {
			if v, ok := r[c]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		out[i] = row
	}
	return out
}

func rowToEntity(headers []string, row []any) (*isg.Entity, error) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[h] = i
	}
	get := func(name string) any {
		if i, ok := idx[name]; ok && i < len(row) {
			return row[i]
		}
		return nil
	}
	str := func(name string) string {
		if v, ok := get(name).(string); ok {
			return v
		}
		return ""
	}
	b := func(name string) bool {
		if v, ok := get(name).(bool); ok {
			return v
		}
		return false
	}
	i64 := func(name string) int {
		switch v := get(name).(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
		return 0
	}

	var sig isg.Signature
	if raw := str("signature_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return nil, fmt.Errorf("unmarshal signature: %w", err)
		}
	}

	e := &isg.Entity{
		Key:      str("key"),
		Kind:     isg.Kind(str("kind")),
		Language: isg.Language(str("language")),
		FilePath: str("file_path"),
		StartLine: i64("start_line"),
		EndLine:   i64("end_line"),
		ByteRange: isg.ByteRange{Start: i64("byte_start"), End: i64("byte_end")},
		Name:      str("name"),
		Signature: sig,
		IsPublic:    b("is_public"),
		IsAsync:     b("is_async"),
		IsUnsafe:    b("is_unsafe"),
		IsTest:      b("is_test"),
		IsGenerated: b("is_generated"),
		CurrentInd:  b("current_ind"),
		FutureInd:   b("future_ind"),
	}
	if v := get("cyclomatic_complexity"); v != nil {
		n := i64("cyclomatic_complexity")
		e.CyclomaticComplexity = &n
	}
	if v := get("current_code"); v != nil {
		s, _ := v.(string)
		e.CurrentCode = &s
	}
	if v := get("future_code"); v != nil {
		s, _ := v.(string)
		e.FutureCode = &s
	}
	if v := get("future_action"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			a := isg.FutureAction(s)
			e.FutureAction = &a
		}
	}
	return e, nil
}
