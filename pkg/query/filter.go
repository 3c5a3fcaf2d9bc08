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

package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op names an atomic predicate's comparison.
type Op string

const (
	OpEq    Op = "="
	OpNeq   Op = "!="
	OpMatch Op = "~"
	OpGt    Op = ">"
	OpIn    Op = "IN"
)

// Filter is a small expression tree over a query level's addressable
// fields: conjunctions/disjunctions of atomic predicates, or the ALL
// sentinel. Deliberately limited so it never grows into general SQL.
type Filter struct {
	All bool

	// Atomic predicate. Empty Field means this is a composite node.
	Field string
	Op    Op
	Value string   // used by Eq/Neq/Gt/Match
	List  []string // used by In

	And []Filter
	Or  []Filter
}

// ALL is the sentinel filter matching every row.
func ALL() Filter { return Filter{All: true} }

// Eq builds an equality predicate.
func Eq(field, value string) Filter { return Filter{Field: field, Op: OpEq, Value: value} }

// Neq builds an inequality predicate.
func Neq(field, value string) Filter { return Filter{Field: field, Op: OpNeq, Value: value} }

// Match builds a regex-match predicate.
func Match(field, pattern string) Filter { return Filter{Field: field, Op: OpMatch, Value: pattern} }

// Gt builds a numeric greater-than predicate.
func Gt(field, value string) Filter { return Filter{Field: field, Op: OpGt, Value: value} }

// In builds a set-membership predicate.
func In(field string, values []string) Filter { return Filter{Field: field, Op: OpIn, List: values} }

// Conjunction combines filters with AND.
func Conjunction(filters ...Filter) Filter { return Filter{And: filters} }

// Disjunction combines filters with OR.
func Disjunction(filters ...Filter) Filter { return Filter{Or: filters} }

// fieldSet maps level names to their addressable fields, grounded on the
// Level 0/1/2 field lists.
var fieldSet = map[Level]map[string]bool{
	Level0: {"from_key": true, "to_key": true, "edge_type": true},
	Level1: {
		"key": true, "kind": true, "language": true, "file_path": true, "name": true,
		"interface_signature": true, "is_public": true, "is_test": true,
		"current_ind": true, "future_ind": true, "future_action": true, "last_modified": true,
	},
	Level2: {
		"key": true, "kind": true, "language": true, "file_path": true, "name": true,
		"interface_signature": true, "is_public": true, "is_test": true,
		"current_ind": true, "future_ind": true, "future_action": true, "last_modified": true,
		"is_async": true, "is_unsafe": true,
	},
}

// ErrUnknownField is returned when a filter addresses a field the query
// level doesn't expose.
type ErrUnknownField struct {
	Level Level
	Field string
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %q for query level %s", e.Field, e.Level)
}

// Validate checks that every field referenced in f is addressable at the
// given level, per spec: "Only indexed fields and scalar fields of the
// current level are addressable. Unknown fields fail the query."
func (f Filter) Validate(level Level) error {
	if f.All {
		return nil
	}
	if f.Field != "" {
		if !fieldSet[level][f.Field] {
			return &ErrUnknownField{Level: level, Field: f.Field}
		}
		if f.Op == OpMatch {
			if _, err := regexp.Compile(f.Value); err != nil {
				return fmt.Errorf("invalid regex for field %q: %w", f.Field, err)
			}
		}
		if f.Op == OpGt {
			if _, err := strconv.ParseFloat(f.Value, 64); err != nil {
				return fmt.Errorf("invalid numeric literal for field %q: %w", f.Field, err)
			}
		}
		return nil
	}
	for _, sub := range f.And {
		if err := sub.Validate(level); err != nil {
			return err
		}
	}
	for _, sub := range f.Or {
		if err := sub.Validate(level); err != nil {
			return err
		}
	}
	return nil
}

// Match reports whether row satisfies f. row maps field name to its
// string-rendered value (booleans as "true"/"false", timestamps as
// RFC3339).
func (f Filter) Match(row map[string]string) bool {
	if f.All {
		return true
	}
	if f.Field != "" {
		actual, ok := row[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			return actual == f.Value
		case OpNeq:
			return actual != f.Value
		case OpMatch:
			re, err := regexp.Compile(f.Value)
			if err != nil {
				return false
			}
			return re.MatchString(actual)
		case OpGt:
			av, aerr := strconv.ParseFloat(actual, 64)
			bv, berr := strconv.ParseFloat(f.Value, 64)
			return aerr == nil && berr == nil && av > bv
		case OpIn:
			for _, v := range f.List {
				if v == actual {
					return true
				}
			}
			return false
		}
		return false
	}
	if len(f.And) > 0 {
		for _, sub := range f.And {
			if !sub.Match(row) {
				return false
			}
		}
		return true
	}
	if len(f.Or) > 0 {
		for _, sub := range f.Or {
			if sub.Match(row) {
				return true
			}
		}
		return false
	}
	return true
}

// IndexedField returns the first atomic field this filter touches, so the
// caller can pick a Datalog scan that uses a secondary index (spec
// requirement: "use an index on at least one atomic predicate when
// available"). Returns "" when the filter is ALL or purely disjunctive
// (no single field dominates an OR across different fields).
func (f Filter) IndexedField() string {
	if f.Field != "" {
		return f.Field
	}
	for _, sub := range f.And {
		if field := sub.IndexedField(); field != "" {
			return field
		}
	}
	return ""
}

func (f Filter) String() string {
	if f.All {
		return "ALL"
	}
	if f.Field != "" {
		if f.Op == OpIn {
			return fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(f.List, ", "))
		}
		return fmt.Sprintf("%s %s %s", f.Field, f.Op, f.Value)
	}
	parts := make([]string, 0)
	joiner := " AND "
	clauses := f.And
	if len(f.Or) > 0 {
		joiner = " OR "
		clauses = f.Or
	}
	for _, sub := range clauses {
		parts = append(parts, sub.String())
	}
	return "(" + strings.Join(parts, joiner) + ")"
}
