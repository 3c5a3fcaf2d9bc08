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
)

// ErrLocked is returned by AcquireLock when another apply is already in
// progress against the same project.
var ErrLocked = fmt.Errorf("apply already in progress: lock file exists")

// Lock guards a single apply run against concurrent applies on the same
// project, so two callers never interleave file writes against the same
// staged set.
type Lock struct {
	path string
}

// AcquireLock creates path exclusively (O_CREATE|O_EXCL); a pre-existing
// lock file means another apply owns the run.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	defer f.Close()
	return &Lock{path: path}, nil
}

// Release removes the lock file, allowing the next apply to proceed.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
