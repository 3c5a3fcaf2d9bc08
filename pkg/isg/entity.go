// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package isg defines the Interface Signature Graph data model: entities,
// edges, the temporal triple that stages proposed changes, and the
// deterministic key scheme that lets re-ingestion avoid orphaning edges.
//
// This package is pure data and validation logic; it has no knowledge of
// parsing, storage, or the filesystem. See pkg/ingestion for the producer,
// pkg/isgdb/pkg/storage for the persistence layer, and pkg/temporal for the
// staged-change workflow built on top of these types.
package isg

import "time"

// Language identifies the parser dialect that produced an entity or edge.
// The set is open-ended but finite per deployment; adding a language means
// adding a constant plus the grammar and query scripts in pkg/ingestion.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
)

// Kind is a language-tagged symbol class (e.g. "fn", "struct", "interface").
// Kept as a plain string rather than a closed Go enum because the legal set
// is fixed per-language, not globally: adding a language adds kinds without
// touching this package.
type Kind string

// Common kinds shared across the bundled language bindings. Language
// parsers may emit additional kinds specific to their grammar.
const (
	KindFunction  Kind = "fn"
	KindMethod    Kind = "method"
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
	KindClass     Kind = "class"
	KindTrait     Kind = "trait"
	KindTypeAlias Kind = "type_alias"
	KindModule    Kind = "module"
	KindConst     Kind = "const"
	KindVar       Kind = "var"
)

// FutureAction names how a staged entity or edge will change when applied.
type FutureAction string

const (
	ActionCreate FutureAction = "Create"
	ActionEdit   FutureAction = "Edit"
	ActionDelete FutureAction = "Delete"
)

// Param is one parameter of a structured interface signature.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Signature is the structured slice of a node's declaration: parameters,
// return type, generics, visibility, and modifiers (spec §3).
type Signature struct {
	Params     []Param  `json:"params,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`
	Generics   []string `json:"generics,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

// ByteRange is an inclusive-exclusive byte span within a source file.
type ByteRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity represents one named code construct parsed out of a source file.
//
// The temporal triple (CurrentInd, FutureInd, FutureAction) takes only the
// four values in the legal-transition table (see Validate); everything else
// is a contract violation rejected at stage-time and commit-time.
type Entity struct {
	Key      string   `json:"key"`
	Kind     Kind     `json:"kind"`
	Language Language `json:"language"`

	FilePath  string    `json:"file_path"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	ByteRange ByteRange `json:"byte_range"`

	Name      string    `json:"name"`
	Signature Signature `json:"interface_signature"`

	IsPublic    bool `json:"is_public"`
	IsAsync     bool `json:"is_async"`
	IsUnsafe    bool `json:"is_unsafe"`
	IsTest      bool `json:"is_test"`
	IsGenerated bool `json:"is_generated"`

	CyclomaticComplexity *int `json:"cyclomatic_complexity,omitempty"`

	CurrentCode *string `json:"current_code,omitempty"`
	FutureCode  *string `json:"future_code,omitempty"`

	CurrentInd   bool          `json:"current_ind"`
	FutureInd    bool          `json:"future_ind"`
	FutureAction *FutureAction `json:"future_action,omitempty"`

	LastModified time.Time `json:"last_modified"`
}

// Clone returns a deep-enough copy of e for safe mutation by callers that
// must not alias the original's pointer fields (CurrentCode, FutureCode,
// FutureAction, CyclomaticComplexity).
func (e Entity) Clone() Entity {
	c := e
	if e.CyclomaticComplexity != nil {
		v := *e.CyclomaticComplexity
		c.CyclomaticComplexity = &v
	}
	if e.CurrentCode != nil {
		v := *e.CurrentCode
		c.CurrentCode = &v
	}
	if e.FutureCode != nil {
		v := *e.FutureCode
		c.FutureCode = &v
	}
	if e.FutureAction != nil {
		v := *e.FutureAction
		c.FutureAction = &v
	}
	c.Signature.Params = append([]Param(nil), e.Signature.Params...)
	c.Signature.Generics = append([]string(nil), e.Signature.Generics...)
	c.Signature.Modifiers = append([]string(nil), e.Signature.Modifiers...)
	return c
}
