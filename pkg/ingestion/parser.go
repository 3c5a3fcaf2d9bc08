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
	"strings"
	"sync"
	"sync/atomic"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/parseltongue/parseltongue/pkg/isg"
)

// ParseResult is everything one file contributes to the graph: its
// entities, immediately-known import edges, and the references that still
// need cross-file resolution (spec §4.1 steps 2-3).
type ParseResult struct {
	FilePath       string
	PackageName    string
	Entities       []isg.Entity
	Imports        []isg.Edge
	UnresolvedRefs []UnresolvedRef
}

// TreeSitterParser extracts entities and dependency references from source
// files using the declarative query scripts in languageSpecs (spec §4.1).
// One parser instance is safe for concurrent use by multiple goroutines;
// each ParseFile call gets its own sitter.Parser and QueryCursor.
type TreeSitterParser struct {
	maxCodeTextSize int64
	truncatedCount  int64

	mu      sync.Mutex
	queries map[isg.Language]*compiledQueries
}

type compiledQueries struct {
	lang       *sitter.Language
	entity     *sitter.Query
	dependency *sitter.Query
}

// NewTreeSitterParser creates a parser with the default maximum CodeText
// size (256KiB), matching the teacher's default truncation threshold.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{maxCodeTextSize: 256 * 1024}
}

func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) { p.maxCodeTextSize = size }

func (p *TreeSitterParser) GetTruncatedCount() int { return int(atomic.LoadInt64(&p.truncatedCount)) }

func (p *TreeSitterParser) ResetTruncatedCount() { atomic.StoreInt64(&p.truncatedCount, 0) }

func (p *TreeSitterParser) compiled(lang isg.Language) (*compiledQueries, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queries == nil {
		p.queries = make(map[isg.Language]*compiledQueries)
	}
	if cq, ok := p.queries[lang]; ok {
		return cq, nil
	}
	spec, ok := languageSpecs[lang]
	if !ok {
		return nil, fmt.Errorf("ingestion: no query spec registered for language %q", lang)
	}
	grammar := spec.Grammar()
	entityQ, err := sitter.NewQuery([]byte(spec.EntityQuery), grammar)
	if err != nil {
		return nil, fmt.Errorf("ingestion: compiling entity query for %q: %w", lang, err)
	}
	var depQ *sitter.Query
	if spec.DependencyQuery != "" {
		depQ, err = sitter.NewQuery([]byte(spec.DependencyQuery), grammar)
		if err != nil {
			return nil, fmt.Errorf("ingestion: compiling dependency query for %q: %w", lang, err)
		}
	}
	cq := &compiledQueries{lang: grammar, entity: entityQ, dependency: depQ}
	p.queries[lang] = cq
	return cq, nil
}

// ParseFile parses a single source file into entities and references.
func (p *TreeSitterParser) ParseFile(fileInfo FileInfo, source []byte) (*ParseResult, error) {
	lang := isg.Language(fileInfo.Language)
	cq, err := p.compiled(lang)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cq.lang)
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("ingestion: parsing %s: %w", fileInfo.Path, err)
	}
	root := tree.RootNode()

	result := &ParseResult{FilePath: fileInfo.Path, PackageName: derivePackageName(fileInfo, source)}

	keyBuilder := isg.NewKeyBuilder()
	var spans []entitySpan

	cursor := sitter.NewQueryCursor()
	cursor.Exec(cq.entity, root)
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		entity, err := p.entityFromMatch(match, cq.entity, source, fileInfo, lang, keyBuilder)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			continue
		}
		spans = append(spans, entitySpan{start: entity.ByteRange.Start, end: entity.ByteRange.End, key: entity.Key})
		result.Entities = append(result.Entities, *entity)
	}

	if cq.dependency != nil {
		depCursor := sitter.NewQueryCursor()
		depCursor.Exec(cq.dependency, root)
		for {
			match, ok := depCursor.NextMatch()
			if !ok {
				break
			}
			p.refFromMatch(match, cq.dependency, source, fileInfo, result, spans)
		}
	}

	return result, nil
}

// entitySpan records an entity's byte range so references can be
// attributed to the innermost entity containing them without relying on
// tree-sitter node identity across separate query-cursor passes.
type entitySpan struct {
	start, end int
	key        string
}

// entityFromMatch builds one isg.Entity from a query match whose captures
// follow the "definition.<kind>[.name]" tagging convention.
func (p *TreeSitterParser) entityFromMatch(match *sitter.QueryMatch, q *sitter.Query, source []byte, fileInfo FileInfo, lang isg.Language, kb *isg.KeyBuilder) (*isg.Entity, error) {
	var defNode *sitter.Node
	var kind isg.Kind
	var name string

	for _, c := range match.Captures {
		tag := q.CaptureNameForId(c.Index)
		parts := strings.SplitN(tag, ".", 3)
		if len(parts) < 2 || parts[0] != "definition" {
			continue
		}
		node := c.Node
		if len(parts) == 2 {
			if k, ok := entityKindForTag(parts[1]); ok {
				kind = k
				defNode = node
			}
			continue
		}
		if parts[2] == "name" {
			name = node.Content(source)
		}
	}

	if defNode == nil || name == "" {
		return nil, nil
	}

	startLine := int(defNode.StartPoint().Row) + 1
	endLine := int(defNode.EndPoint().Row) + 1
	code := defNode.Content(source)
	truncated := code
	if p.maxCodeTextSize > 0 && int64(len(truncated)) > p.maxCodeTextSize {
		truncated = truncated[:p.maxCodeTextSize]
		atomic.AddInt64(&p.truncatedCount, 1)
	}

	key, err := kb.Build(isg.KeyInput{
		Language:   lang,
		Kind:       kind,
		Name:       name,
		FilePath:   fileInfo.Path,
		StartLine:  startLine,
		EndLine:    endLine,
		Signature:  code,
		ModulePath: fileInfo.Path,
	})
	if err != nil {
		return nil, err
	}

	entity := &isg.Entity{
		Key:      key,
		Kind:     kind,
		Language: lang,
		FilePath: fileInfo.Path,
		StartLine: startLine,
		EndLine:   endLine,
		ByteRange: isg.ByteRange{Start: int(defNode.StartByte()), End: int(defNode.EndByte())},
		Name:      name,
		IsPublic:  isExported(name, lang),
		IsTest:    isTestEntity(name, fileInfo.Path),
		CurrentCode: &truncated,
		CurrentInd:  true,
		FutureInd:   true,
	}
	return entity, nil
}

// refFromMatch appends an import edge or an UnresolvedRef from a query
// match whose captures follow the "reference.<edgeType>[.name|.path]"
// tagging convention. Each reference is attributed to the innermost
// enclosing entity, or to the file itself (key "file:"+path) when no
// entity contains it - e.g. a package-level import.
func (p *TreeSitterParser) refFromMatch(match *sitter.QueryMatch, q *sitter.Query, source []byte, fileInfo FileInfo, result *ParseResult, spans []entitySpan) {
	var refNode *sitter.Node
	var edgeType isg.EdgeType
	var refText string
	var isPath bool

	for _, c := range match.Captures {
		tag := q.CaptureNameForId(c.Index)
		parts := strings.SplitN(tag, ".", 3)
		if len(parts) < 2 || parts[0] != "reference" {
			continue
		}
		node := c.Node
		if len(parts) == 2 {
			if et, ok := edgeTypeForTag(parts[1]); ok {
				edgeType = et
				refNode = node
			}
			continue
		}
		switch parts[2] {
		case "name":
			refText = node.Content(source)
		case "path":
			refText = strings.Trim(node.Content(source), "\"'")
			isPath = true
		}
	}

	if refNode == nil || refText == "" {
		return
	}

	fromKey := enclosingEntityKey(int(refNode.StartByte()), spans, fileInfo.Path)
	line := int(refNode.StartPoint().Row) + 1

	if isPath {
		result.Imports = append(result.Imports, isg.Edge{
			FromKey:    fromKey,
			ToKey:      refText,
			EdgeType:   edgeType,
			CurrentInd: true,
			FutureInd:  true,
			LineNumber: intPtr(line),
			Strength:   1.0,
		})
		return
	}

	result.UnresolvedRefs = append(result.UnresolvedRefs, UnresolvedRef{
		FromKey:    fromKey,
		FilePath:   fileInfo.Path,
		TargetName: refText,
		EdgeType:   edgeType,
		LineNumber: line,
	})
}

// enclosingEntityKey finds the smallest entity span containing byteOffset,
// falling back to a file-level pseudo-key when the reference sits outside
// any entity (a top-level import, for instance).
func enclosingEntityKey(byteOffset int, spans []entitySpan, filePath string) string {
	best := -1
	bestKey := ""
	for _, s := range spans {
		if byteOffset < s.start || byteOffset >= s.end {
			continue
		}
		width := s.end - s.start
		if best == -1 || width < best {
			best = width
			bestKey = s.key
		}
	}
	if bestKey == "" {
		return "file:" + filePath
	}
	return bestKey
}

func intPtr(v int) *int { return &v }

// isExported reports whether a name is visible outside its declaring
// package/module, using each language's own visibility convention.
func isExported(name string, lang isg.Language) bool {
	if name == "" {
		return false
	}
	switch lang {
	case isg.LanguageGo:
		r := []rune(name)[0]
		return r >= 'A' && r <= 'Z'
	default:
		return !strings.HasPrefix(name, "_")
	}
}

func isTestEntity(name, filePath string) bool {
	if strings.HasSuffix(filePath, "_test.go") || strings.Contains(filePath, ".test.") || strings.Contains(filePath, ".spec.") {
		return true
	}
	return strings.HasPrefix(name, "Test") || strings.HasPrefix(name, "test_") || strings.HasPrefix(name, "test")
}

// derivePackageName extracts the declaring package/module name for a file,
// used by EdgeResolver.BuildIndex to key cross-file qualified lookups.
func derivePackageName(fileInfo FileInfo, source []byte) string {
	if isg.Language(fileInfo.Language) != isg.LanguageGo {
		return ""
	}
	text := string(source)
	idx := strings.Index(text, "package ")
	if idx < 0 {
		return ""
	}
	rest := text[idx+len("package "):]
	end := strings.IndexAny(rest, " \t\n\r")
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end])
}
