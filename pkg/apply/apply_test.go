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
	"os"
	"path/filepath"
	"testing"

	"github.com/parseltongue/parseltongue/pkg/isg"
)

func strPtr(s string) *string { return &s }

func TestApplyCreateNewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.go")

	action := isg.ActionCreate
	plan := &Plan{Ops: []Op{{
		Entity: isg.Entity{Key: "k1", FilePath: path, FutureAction: &action, FutureCode: strPtr("package main\n")},
		Action: isg.ActionCreate,
	}}}

	result, err := Apply(plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.FilesWritten) != 1 {
		t.Fatalf("expected one file written, got %d", len(result.FilesWritten))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "package main\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestApplyEditReplacesByteRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.go")
	original := "package main\n\nfunc Foo() int { return 1 }\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	start := len("package main\n\n")
	end := start + len("func Foo() int { return 1 }")

	action := isg.ActionEdit
	plan := &Plan{Ops: []Op{{
		Entity: isg.Entity{
			Key: "k1", FilePath: path, FutureAction: &action,
			FutureCode: strPtr("func Foo() int { return 2 }"),
			ByteRange:  isg.ByteRange{Start: start, End: end},
		},
		Action: isg.ActionEdit,
	}}}

	if _, err := Apply(plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "package main\n\nfunc Foo() int { return 2 }\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestAcquireLockRefusesConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apply.lock")

	lock, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("unexpected error acquiring first lock: %v", err)
	}

	if _, err := AcquireLock(path); err != ErrLocked {
		t.Fatalf("expected ErrLocked on second acquire, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("unexpected error releasing lock: %v", err)
	}

	lock2, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("expected acquire to succeed after release: %v", err)
	}
	_ = lock2.Release()
}
