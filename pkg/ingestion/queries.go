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
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/parseltongue/parseltongue/pkg/isg"
)

// LanguageSpec binds a grammar to the two declarative query scripts that
// drive entity and dependency extraction (spec §4.1). Each capture name is
// a tag such as "definition.function" or "reference.call"; the tag's
// prefix ("definition." or "reference.") tells the walker which side of
// extraction the capture belongs to, and the suffix maps to an isg.Kind or
// isg.EdgeType via entityKindForTag/edgeTypeForTag.
type LanguageSpec struct {
	Grammar         func() *sitter.Language
	EntityQuery     string
	DependencyQuery string
}

// languageSpecs holds one LanguageSpec per bundled language. Adding a
// language means adding a grammar import, a spec entry here, and a case in
// entityKindForTag/edgeTypeForTag - no changes to the walker itself.
var languageSpecs = map[isg.Language]LanguageSpec{
	isg.LanguageGo: {
		Grammar: golang.GetLanguage,
		EntityQuery: `
			(function_declaration name: (identifier) @definition.function.name) @definition.function
			(method_declaration name: (field_identifier) @definition.method.name) @definition.method
			(type_spec name: (type_identifier) @definition.struct.name type: (struct_type)) @definition.struct
			(type_spec name: (type_identifier) @definition.interface.name type: (interface_type)) @definition.interface
			(type_spec name: (type_identifier) @definition.type_alias.name type: (_) @definition.type_alias.underlying) @definition.type_alias
			(const_spec name: (identifier) @definition.const.name) @definition.const
			(var_spec name: (identifier) @definition.var.name) @definition.var
		`,
		DependencyQuery: `
			(call_expression function: (identifier) @reference.call.name) @reference.call
			(call_expression function: (selector_expression field: (field_identifier) @reference.methodcall.name)) @reference.methodcall
			(import_spec path: (interpreted_string_literal) @reference.import.path) @reference.import
		`,
	},
	isg.LanguagePython: {
		Grammar: python.GetLanguage,
		EntityQuery: `
			(function_definition name: (identifier) @definition.function.name) @definition.function
			(class_definition name: (identifier) @definition.class.name) @definition.class
		`,
		DependencyQuery: `
			(call function: (identifier) @reference.call.name) @reference.call
			(call function: (attribute attribute: (identifier) @reference.methodcall.name)) @reference.methodcall
			(import_statement name: (dotted_name) @reference.import.path) @reference.import
			(import_from_statement module_name: (dotted_name) @reference.import.path) @reference.import
			(class_definition superclasses: (argument_list (identifier) @reference.inherit.name)) @reference.inherit
		`,
	},
	isg.LanguageTypeScript: {
		Grammar: typescript.GetLanguage,
		EntityQuery: `
			(function_declaration name: (identifier) @definition.function.name) @definition.function
			(method_definition name: (property_identifier) @definition.method.name) @definition.method
			(class_declaration name: (type_identifier) @definition.class.name) @definition.class
			(interface_declaration name: (type_identifier) @definition.interface.name) @definition.interface
			(type_alias_declaration name: (type_identifier) @definition.type_alias.name) @definition.type_alias
		`,
		DependencyQuery: `
			(call_expression function: (identifier) @reference.call.name) @reference.call
			(call_expression function: (member_expression property: (property_identifier) @reference.methodcall.name)) @reference.methodcall
			(import_statement source: (string) @reference.import.path) @reference.import
			(class_heritage (extends_clause value: (identifier) @reference.inherit.name)) @reference.inherit
			(class_heritage (implements_clause (type_identifier) @reference.implement.name)) @reference.implement
		`,
	},
	isg.LanguageJavaScript: {
		Grammar: javascript.GetLanguage,
		EntityQuery: `
			(function_declaration name: (identifier) @definition.function.name) @definition.function
			(method_definition name: (property_identifier) @definition.method.name) @definition.method
			(class_declaration name: (identifier) @definition.class.name) @definition.class
		`,
		DependencyQuery: `
			(call_expression function: (identifier) @reference.call.name) @reference.call
			(call_expression function: (member_expression property: (property_identifier) @reference.methodcall.name)) @reference.methodcall
			(import_statement source: (string) @reference.import.path) @reference.import
			(class_heritage (extends_clause value: (identifier) @reference.inherit.name)) @reference.inherit
		`,
	},
}

// entityKindForTag maps an entity-query capture tag's suffix to an isg.Kind.
func entityKindForTag(tag string) (isg.Kind, bool) {
	switch tag {
	case "function":
		return isg.KindFunction, true
	case "method":
		return isg.KindMethod, true
	case "struct":
		return isg.KindStruct, true
	case "interface":
		return isg.KindInterface, true
	case "class":
		return isg.KindClass, true
	case "type_alias":
		return isg.KindTypeAlias, true
	case "const":
		return isg.KindConst, true
	case "var":
		return isg.KindVar, true
	}
	return "", false
}

// edgeTypeForTag maps a dependency-query capture tag's suffix to an
// isg.EdgeType.
func edgeTypeForTag(tag string) (isg.EdgeType, bool) {
	switch tag {
	case "call":
		return isg.EdgeCalls, true
	case "methodcall":
		return isg.EdgeMethodCall, true
	case "import":
		return isg.EdgeImports, true
	case "inherit":
		return isg.EdgeInherits, true
	case "implement":
		return isg.EdgeImplements, true
	}
	return "", false
}
