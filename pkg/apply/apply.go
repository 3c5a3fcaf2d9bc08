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

package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parseltongue/parseltongue/pkg/isg"
)

// Result reports which files were written and, on failure, which ones
// completed before the error - so a caller can reconcile filesystem state
// against the store without guessing.
type Result struct {
	FilesWritten   []string
	FilesFailed    string // path of the file being written when Apply aborted, "" on success
	EntitiesByFile map[string][]string
}

// Apply executes plan against the filesystem: one atomic write per file.
// A failure aborts immediately; files already renamed stay as written
// (recorded in Result.FilesWritten) and the caller must reconcile or
// re-run - non-atomic across files is a deliberate trade-off spec §4.7
// accepts in exchange for not holding every file's write lock at once.
func Apply(plan *Plan) (*Result, error) {
	byFile := make(map[string][]Op)
	var order []string
	for _, op := range plan.Ops {
		if _, ok := byFile[op.Entity.FilePath]; !ok {
			order = append(order, op.Entity.FilePath)
		}
		byFile[op.Entity.FilePath] = append(byFile[op.Entity.FilePath], op)
	}

	result := &Result{EntitiesByFile: make(map[string][]string)}
	for _, path := range order {
		ops := byFile[path]
		for _, op := range ops {
			result.EntitiesByFile[path] = append(result.EntitiesByFile[path], op.Entity.Key)
		}
		if err := applyFile(path, ops); err != nil {
			result.FilesFailed = path
			return result, fmt.Errorf("apply %s: %w", path, err)
		}
		result.FilesWritten = append(result.FilesWritten, path)
	}
	return result, nil
}

func applyFile(path string, ops []Op) error {
	original := []byte{}
	existed := true
	if data, err := os.ReadFile(path); err == nil {
		original = data
	} else if os.IsNotExist(err) {
		existed = false
	} else {
		return fmt.Errorf("read %s: %w", path, err)
	}

	// Process highest-offset edits first so earlier byte ranges stay
	// valid as later (higher-offset) ones are rewritten.
	sorted := make([]Op, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Entity.ByteRange.Start > sorted[j].Entity.ByteRange.Start
	})

	buf := append([]byte(nil), original...)
	var appends [][]byte

	for _, op := range sorted {
		e := op.Entity
		switch op.Action {
		case isg.ActionDelete:
			if !existed {
				continue
			}
			start, end := clampRange(e.ByteRange, len(buf))
			buf = append(buf[:start], buf[end:]...)
		case isg.ActionEdit:
			start, end := clampRange(e.ByteRange, len(buf))
			code := ""
			if e.FutureCode != nil {
				code = *e.FutureCode
			}
			replaced := append([]byte{}, buf[:start]...)
			replaced = append(replaced, []byte(code)...)
			replaced = append(replaced, buf[end:]...)
			buf = replaced
		case isg.ActionCreate:
			code := ""
			if e.FutureCode != nil {
				code = *e.FutureCode
			}
			switch {
			case !existed:
				buf = []byte(code)
				existed = true
			case e.ByteRange.Start > 0:
				// An explicit anchor was staged: insert at that byte
				// offset instead of the end-of-file default.
				start, _ := clampRange(isg.ByteRange{Start: e.ByteRange.Start, End: e.ByteRange.Start}, len(buf))
				inserted := append([]byte{}, buf[:start]...)
				inserted = append(inserted, []byte(code)...)
				inserted = append(inserted, buf[start:]...)
				buf = inserted
			default:
				appends = append(appends, []byte(code))
			}
		}
	}

	for _, chunk := range appends {
		if len(buf) > 0 && buf[len(buf)-1] != '\n' {
			buf = append(buf, '\n')
		}
		buf = append(buf, chunk...)
		if len(chunk) > 0 && chunk[len(chunk)-1] != '\n' {
			buf = append(buf, '\n')
		}
	}

	return writeAtomic(path, buf)
}

func clampRange(r isg.ByteRange, max int) (int, int) {
	start, end := r.Start, r.End
	if start < 0 {
		start = 0
	}
	if end > max {
		end = max
	}
	if start > end {
		start = end
	}
	return start, end
}

// writeAtomic writes data to a temp file in the target directory, fsyncs
// it, then renames over path - so a crash mid-write never leaves path
// truncated or partially written.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".apply-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
