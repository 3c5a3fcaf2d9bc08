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

// Level selects one of the three progressively richer views spec §4.6
// defines: Level0 (edge list), Level1 (entity + ISG + temporal), and
// Level2 (Level1 plus type-system fields).
type Level int

const (
	// Level0 returns from_key, to_key, edge_type only - architectural
	// graphs and dependency analysis.
	Level0 Level = iota
	// Level1 returns entity identity, signature, temporal state, and
	// forward/reverse dependency key lists.
	Level1
	// Level2 adds structured type-system fields on top of Level1.
	Level2
)

func (l Level) String() string {
	switch l {
	case Level0:
		return "Level0"
	case Level1:
		return "Level1"
	case Level2:
		return "Level2"
	default:
		return "LevelUnknown"
	}
}

// Row is one result row. Which fields are populated depends on the Level
// the query ran at; Level0 populates only FromKey/ToKey/EdgeType.
type Row struct {
	// Level 0
	FromKey  string `json:"from_key,omitempty"`
	ToKey    string `json:"to_key,omitempty"`
	EdgeType string `json:"edge_type,omitempty"`

	// Level 1
	Key                string   `json:"key,omitempty"`
	Kind               string   `json:"kind,omitempty"`
	Language           string   `json:"language,omitempty"`
	FilePath           string   `json:"file_path,omitempty"`
	Name               string   `json:"name,omitempty"`
	InterfaceSignature string   `json:"interface_signature,omitempty"`
	IsPublic           bool     `json:"is_public,omitempty"`
	IsTest             bool     `json:"is_test,omitempty"`
	ForwardDeps        []string `json:"forward_deps,omitempty"`
	ReverseDeps        []string `json:"reverse_deps,omitempty"`
	CurrentInd         bool     `json:"current_ind,omitempty"`
	FutureInd          bool     `json:"future_ind,omitempty"`
	FutureAction       string   `json:"future_action,omitempty"`
	LastModified       string   `json:"last_modified,omitempty"`
	CurrentCode        string   `json:"current_code,omitempty"`
	FutureCode         string   `json:"future_code,omitempty"`

	// Level 2
	ReturnType string   `json:"return_type,omitempty"`
	ParamTypes []string `json:"param_types,omitempty"`
	IsAsync    bool     `json:"is_async,omitempty"`
	IsUnsafe   bool     `json:"is_unsafe,omitempty"`
}
