// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package isg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrKeyCollision is returned when two distinct entities hash to the same
// salted key. This is fatal for the ingestion run that triggers it: the key
// scheme promises distinctness, so a second collision after salting means
// the inputs genuinely coincide and the run must abort rather than silently
// merge two entities.
type ErrKeyCollision struct {
	Key string
}

func (e *ErrKeyCollision) Error() string {
	return fmt.Sprintf("key collision: %s already assigned to a distinct entity", e.Key)
}

// KeyInput is the set of fields the key builder reads. ModulePath is the
// import/package path (empty for languages without one) and Signature is
// the raw (unstructured) declaration text; both feed only the collision
// salt, never the visible key.
type KeyInput struct {
	Language   Language
	Kind       Kind
	Name       string
	FilePath   string
	StartLine  int
	EndLine    int
	Signature  string
	ModulePath string
}

// KeyBuilder assigns deterministic keys of the form
// "<language>:<kind>:<name>:<pathSlug>:<startLine>-<endLine>" (spec §4.2),
// appending "_" and an 8-hex hash of (file_path, start_line, end_line,
// signature, module_path) on collision and failing the run if a second collision
// occurs after salting.
//
// Not safe for concurrent use; callers with a parallel producer side (see
// pkg/ingestion) must serialize calls to Build, typically by funneling all
// parser-worker output through one key-assignment goroutine.
type KeyBuilder struct {
	seen map[string]KeyInput
}

// NewKeyBuilder returns an empty KeyBuilder.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{seen: make(map[string]KeyInput)}
}

// Build returns the deterministic key for in, salting on collision with
// distinct inputs and erroring with ErrKeyCollision if the salted key also
// collides.
func (b *KeyBuilder) Build(in KeyInput) (string, error) {
	candidate := composeKey(in, "")
	if prior, ok := b.seen[candidate]; !ok {
		b.seen[candidate] = in
		return candidate, nil
	} else if sameInput(prior, in) {
		return candidate, nil
	}

	salt := collisionSalt(in)
	salted := composeKey(in, salt)
	if prior, ok := b.seen[salted]; !ok {
		b.seen[salted] = in
		return salted, nil
	} else if sameInput(prior, in) {
		return salted, nil
	}

	return "", &ErrKeyCollision{Key: salted}
}

func sameInput(a, b KeyInput) bool {
	return a.FilePath == b.FilePath && a.StartLine == b.StartLine &&
		a.EndLine == b.EndLine && a.Signature == b.Signature && a.ModulePath == b.ModulePath
}

func composeKey(in KeyInput, salt string) string {
	slug := pathSlug(in.FilePath)
	name := sanitizeSegment(in.Name)
	key := fmt.Sprintf("%s:%s:%s:%s:%d-%d", in.Language, in.Kind, name, slug, in.StartLine, in.EndLine)
	if salt != "" {
		key += "_" + salt
	}
	return key
}

// collisionSalt is an 8-hex-character digest of the fields that distinguish
// otherwise-identically-named, identically-ranged entities: full file path,
// exact line range, raw signature text, and module path.
func collisionSalt(in KeyInput) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d\x00%s\x00%s",
		in.FilePath, in.StartLine, in.EndLine, in.Signature, in.ModulePath)))
	return hex.EncodeToString(h[:])[:8]
}

// pathSlug turns a file path into the key's path segment: forward slashes,
// no leading "./" or "/", and path separators and dots replaced by
// underscores ("src/a.rs" -> "src_a_rs") so the path never introduces
// extra ':' or '/' fields into the composed key.
func pathSlug(path string) string {
	path = strings.TrimPrefix(path, "./")
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.TrimPrefix(path, "/")
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, ".", "_")
	return sanitizeSegment(path)
}

// sanitizeSegment restricts a key segment to [A-Za-z0-9_.:/-], replacing
// every other rune with '_' so the key stays safe to embed in Datalog
// scripts and shell-adjacent tooling without further escaping.
func sanitizeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == ':' || r == '/' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
