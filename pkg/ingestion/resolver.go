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

package ingestion

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/parseltongue/parseltongue/pkg/isg"
)

// PackageInfo groups the files that share a directory (Go package) or
// module namespace, used to resolve qualified references across files.
type PackageInfo struct {
	PackagePath string
	PackageName string
	Files       []string
}

// UnresolvedRef is a reference captured by a dependency query before its
// target entity is known: a call, import, inheritance, or implements
// relationship named only by text (spec §4.1 step 3, §4.4 step 4).
type UnresolvedRef struct {
	FromKey    string
	FilePath   string
	TargetName string
	EdgeType   isg.EdgeType
	LineNumber int
}

// EdgeResolver turns UnresolvedRefs into isg.Edge values by matching the
// referenced name against the entity index built from an ingestion run.
// References that cannot be matched still become edges (spec §9
// "unresolved edges are never dropped"); their ToKey is just the raw
// textual name instead of a real entity key.
type EdgeResolver struct {
	// packageIndex: directory path -> PackageInfo
	packageIndex map[string]*PackageInfo

	// globalEntities: package_path -> simple_name -> entity key
	globalEntities map[string]map[string]string

	// fileImports: file_path -> alias -> import_path
	fileImports map[string]map[string]string

	// importPathToPackagePath: import_path -> local package directory
	importPathToPackagePath map[string]string
}

// NewEdgeResolver creates an empty resolver.
func NewEdgeResolver() *EdgeResolver {
	return &EdgeResolver{
		packageIndex:            make(map[string]*PackageInfo),
		globalEntities:          make(map[string]map[string]string),
		fileImports:             make(map[string]map[string]string),
		importPathToPackagePath: make(map[string]string),
	}
}

// BuildIndex constructs the global entity registry from a completed parse
// pass. Call once after every file has been parsed, before ResolveRefs.
func (r *EdgeResolver) BuildIndex(entities []isg.Entity, imports []isg.Edge, importTargets map[string]string, packageNames map[string]string) {
	keyToFile := make(map[string]string, len(entities))
	for _, e := range entities {
		keyToFile[e.Key] = e.FilePath
		pkgPath := filepath.Dir(e.FilePath)
		if _, exists := r.packageIndex[pkgPath]; !exists {
			r.packageIndex[pkgPath] = &PackageInfo{
				PackagePath: pkgPath,
				PackageName: packageNames[e.FilePath],
			}
		}
		pkg := r.packageIndex[pkgPath]
		if len(pkg.Files) == 0 || pkg.Files[len(pkg.Files)-1] != e.FilePath {
			pkg.Files = append(pkg.Files, e.FilePath)
		}

		if _, exists := r.globalEntities[pkgPath]; !exists {
			r.globalEntities[pkgPath] = make(map[string]string)
		}
		r.globalEntities[pkgPath][e.Name] = e.Key
	}

	for _, imp := range imports {
		alias := importTargets[imp.ToKey]
		path := imp.ToKey
		if alias == "" || alias == "_" {
			alias = filepath.Base(strings.Trim(path, `"`))
		}
		if alias == "_" {
			continue
		}
		file := strings.TrimPrefix(imp.FromKey, "file:")
		if f, ok := keyToFile[imp.FromKey]; ok {
			file = f
		}
		if _, exists := r.fileImports[file]; !exists {
			r.fileImports[file] = make(map[string]string)
		}
		r.fileImports[file][alias] = strings.Trim(path, `"`)
	}

	r.buildImportPathMapping()
}

// buildImportPathMapping infers a mapping from import paths to local
// package directories by matching on path suffix and package name.
func (r *EdgeResolver) buildImportPathMapping() {
	for pkgPath, pkgInfo := range r.packageIndex {
		r.importPathToPackagePath[pkgPath] = pkgPath
		if pkgInfo.PackageName != "" {
			r.importPathToPackagePath[pkgInfo.PackageName] = pkgPath
		}
	}
}

// ResolveRefs resolves UnresolvedRefs to edges. Sequential dispatch below
// 1000 refs, a capped worker pool above it (same threshold the teacher's
// call resolver used).
func (r *EdgeResolver) ResolveRefs(refs []UnresolvedRef, byFile map[string]string) []isg.Edge {
	if len(refs) < 1000 {
		return r.resolveSequential(refs, byFile)
	}
	return r.resolveParallel(refs, byFile)
}

func (r *EdgeResolver) resolveSequential(refs []UnresolvedRef, byFile map[string]string) []isg.Edge {
	edges := make([]isg.Edge, 0, len(refs))
	seen := make(map[string]bool)
	for _, ref := range refs {
		edge := r.resolveOne(ref, byFile)
		key := edge.FromKey + "->" + edge.ToKey + "/" + string(edge.EdgeType)
		if !seen[key] {
			seen[key] = true
			edges = append(edges, edge)
		}
	}
	return edges
}

func (r *EdgeResolver) resolveParallel(refs []UnresolvedRef, byFile map[string]string) []isg.Edge {
	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}

	jobs := make(chan int, len(refs))
	results := make(chan isg.Edge, len(refs))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- r.resolveOne(refs[i], byFile)
			}
		}()
	}

	for i := range refs {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]bool)
	var edges []isg.Edge
	for e := range results {
		key := e.FromKey + "->" + e.ToKey + "/" + string(e.EdgeType)
		if !seen[key] {
			seen[key] = true
			edges = append(edges, e)
		}
	}
	return edges
}

// resolveOne attempts to resolve a single reference; on failure the edge
// still carries the raw TargetName as ToKey (spec §9: unresolved edges are
// flagged by the absence of a matching entity, never dropped).
func (r *EdgeResolver) resolveOne(ref UnresolvedRef, byFile map[string]string) isg.Edge {
	name := ref.TargetName
	target := name

	if strings.Contains(name, ".") {
		parts := strings.SplitN(name, ".", 2)
		alias, member := parts[0], parts[1]
		if strings.Contains(member, ".") {
			member = member[strings.LastIndex(member, ".")+1:]
		}

		if imports, ok := r.fileImports[byFile[ref.FromKey]]; ok {
			if importPath, ok := imports[alias]; ok {
				if pkgPath := r.findPackageByImportPath(importPath); pkgPath != "" {
					if entities, ok := r.globalEntities[pkgPath]; ok {
						if key, ok := entities[member]; ok {
							target = key
						}
					}
				}
			}
		}
	} else {
		for alias, importPath := range r.fileImports[byFile[ref.FromKey]] {
			if alias != "." {
				continue
			}
			if pkgPath := r.findPackageByImportPath(importPath); pkgPath != "" {
				if entities, ok := r.globalEntities[pkgPath]; ok {
					if key, ok := entities[name]; ok {
						target = key
						break
					}
				}
			}
		}
		if target == name {
			pkgPath := filepath.Dir(byFile[ref.FromKey])
			if entities, ok := r.globalEntities[pkgPath]; ok {
				if key, ok := entities[name]; ok {
					target = key
				}
			}
		}
		if target == name {
			var found []string
			for _, entities := range r.globalEntities {
				if key, ok := entities[name]; ok {
					found = append(found, key)
				}
			}
			if len(found) == 1 {
				target = found[0]
			}
		}
	}

	edge := isg.NewEdge(ref.FromKey, target, ref.EdgeType)
	if ref.LineNumber > 0 {
		ln := ref.LineNumber
		edge.LineNumber = &ln
	}
	return edge
}

// findPackageByImportPath maps an import path to a local package
// directory by suffix match, falling back to package-name match.
func (r *EdgeResolver) findPackageByImportPath(importPath string) string {
	if pkgPath, ok := r.importPathToPackagePath[importPath]; ok {
		return pkgPath
	}

	for pkgPath := range r.packageIndex {
		if strings.HasSuffix(importPath, pkgPath) {
			r.importPathToPackagePath[importPath] = pkgPath
			return pkgPath
		}
	}

	baseName := filepath.Base(importPath)
	for pkgPath, pkgInfo := range r.packageIndex {
		if pkgInfo.PackageName == baseName {
			r.importPathToPackagePath[importPath] = pkgPath
			return pkgPath
		}
	}

	return ""
}

// Stats reports the size of the resolver's index, for logging.
func (r *EdgeResolver) Stats() (packages, entities, imports int) {
	packages = len(r.packageIndex)
	for _, e := range r.globalEntities {
		entities += len(e)
	}
	for _, i := range r.fileImports {
		imports += len(i)
	}
	return
}
