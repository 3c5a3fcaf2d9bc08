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

// Package isgdb provides a Go binding for an embedded Datalog-capable
// graph/document database (CozoDB v0.7.6+ compatible C API).
//
// Parseltongue uses this engine to persist the Interface Signature Graph:
// entities, edges, and their temporal triple, with keyed upserts, secondary
// indexes, range scans, atomic multi-row transactions, and snapshot/restore.
// Any embedded store satisfying those five operations (spec §6) is a legal
// substitute; this binding is the one the reference build ships with.
//
// # Requirements
//
// This package requires CGO and the database's C library. Build with:
//
//	CGO_ENABLED=1 go build
//
// # Storage Engines
//
//   - "mem": in-memory, not persisted (tests, scratch analysis)
//   - "sqlite": single-file persistence
//   - "rocksdb": best performance for production-sized repositories
package isgdb

/*
#include <stdlib.h>
#include <string.h>
#include "isgdb_c.h"

// Use ${SRCDIR} so "go install ./cmd/parseltongue" finds the vendored
// static library under ./lib without requiring a system install.
#cgo LDFLAGS: -L${SRCDIR}/../../lib -lisgdb_c -lstdc++ -lm
#cgo windows LDFLAGS: -lbcrypt -lwsock32 -lws2_32 -lshlwapi -lrpcrt4
#cgo darwin LDFLAGS: -framework Security
*/
import "C"

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"
)

// DB represents an open embedded database instance.
type DB struct {
	id     C.int32_t
	closed bool
}

// NamedRows is the result of a query: column headers plus row data.
type NamedRows struct {
	Headers []string
	Rows    [][]any
}

// Open opens a new database.
//
// engine: storage engine to use - "mem", "sqlite", or "rocksdb"
// path: path to the database directory (ignored for "mem")
// options: engine-specific options as a map (can be nil)
func Open(engine, path string, options map[string]any) (*DB, error) {
	cEngine := C.CString(engine)
	defer C.free(unsafe.Pointer(cEngine))

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	optionsJSON := "{}"
	if len(options) > 0 {
		optBytes, err := json.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		optionsJSON = string(optBytes)
	}
	slog.Debug("isgdb.open", "engine", engine, "path", path, "options", optionsJSON)
	cOptions := C.CString(optionsJSON)
	defer C.free(unsafe.Pointer(cOptions))

	var dbID C.int32_t
	errPtr := C.isgdb_open(cEngine, cPath, cOptions, &dbID)
	if errPtr != nil {
		errMsg := C.GoString(errPtr)
		C.isgdb_free_str(errPtr)
		return nil, errors.New(errMsg)
	}

	return &DB{id: dbID}, nil
}

// Run executes a script that may mutate the database.
func (db *DB) Run(script string, params map[string]any) (NamedRows, error) {
	return db.runQuery(script, params, false)
}

// RunReadOnly executes a script that must not mutate the database.
// Enforced at the engine level: write operations return an error.
func (db *DB) RunReadOnly(script string, params map[string]any) (NamedRows, error) {
	return db.runQuery(script, params, true)
}

func (db *DB) runQuery(script string, params map[string]any, immutable bool) (NamedRows, error) {
	if db.closed {
		return NamedRows{}, errors.New("database is closed")
	}

	cScript := C.CString(script)
	defer C.free(unsafe.Pointer(cScript))

	paramsJSON := "{}"
	if len(params) > 0 {
		paramBytes, err := json.Marshal(params)
		if err != nil {
			return NamedRows{}, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = string(paramBytes)
	}
	cParams := C.CString(paramsJSON)
	defer C.free(unsafe.Pointer(cParams))

	cImmutable := C.bool(immutable)
	resultPtr := C.isgdb_run_query(db.id, cScript, cParams, cImmutable)
	if resultPtr == nil {
		return NamedRows{}, errors.New("isgdb_run_query returned null")
	}

	resultJSON := C.GoString(resultPtr)
	C.isgdb_free_str(resultPtr)

	return parseResult(resultJSON)
}

// Close closes the database connection. Safe to call more than once.
func (db *DB) Close() bool {
	if db.closed {
		return false
	}
	db.closed = true
	return bool(C.isgdb_close(db.id))
}

func parseResult(jsonStr string) (NamedRows, error) {
	var result struct {
		OK      bool     `json:"ok"`
		Headers []string `json:"headers"`
		Rows    [][]any  `json:"rows"`
		Message string   `json:"message"`
		Display string   `json:"display"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return NamedRows{}, fmt.Errorf("parse result: %w", err)
	}

	if !result.OK {
		errMsg := result.Message
		if errMsg == "" {
			errMsg = result.Display
		}
		if errMsg == "" {
			errMsg = "query failed"
		}
		return NamedRows{}, errors.New(errMsg)
	}

	return NamedRows{Headers: result.Headers, Rows: result.Rows}, nil
}

// Backup writes a consistent snapshot of the database to outPath.
func (db *DB) Backup(outPath string) error {
	if db.closed {
		return errors.New("database is closed")
	}

	cPath := C.CString(outPath)
	defer C.free(unsafe.Pointer(cPath))

	resultPtr := C.isgdb_backup(db.id, cPath)
	if resultPtr == nil {
		return errors.New("isgdb_backup returned null")
	}

	resultJSON := C.GoString(resultPtr)
	C.isgdb_free_str(resultPtr)

	var result struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return fmt.Errorf("parse backup result: %w", err)
	}
	if !result.OK {
		return errors.New(result.Message)
	}
	return nil
}

// Restore replaces the database's contents with a prior Backup snapshot.
func (db *DB) Restore(inPath string) error {
	if db.closed {
		return errors.New("database is closed")
	}

	cPath := C.CString(inPath)
	defer C.free(unsafe.Pointer(cPath))

	resultPtr := C.isgdb_restore(db.id, cPath)
	if resultPtr == nil {
		return errors.New("isgdb_restore returned null")
	}

	resultJSON := C.GoString(resultPtr)
	C.isgdb_free_str(resultPtr)

	var result struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return fmt.Errorf("parse restore result: %w", err)
	}
	if !result.OK {
		return errors.New(result.Message)
	}
	return nil
}
