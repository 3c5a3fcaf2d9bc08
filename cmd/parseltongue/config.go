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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the project configuration stored at .parseltongue/project.yaml.
// It holds the tunables spec.md §6 names: project identity, the worker
// pool size, the query row ceiling, batch size, database location, and
// log verbosity.
type Config struct {
	ProjectID string `yaml:"project_id"`
	Workspace string `yaml:"workspace"`

	Store struct {
		DataDir string `yaml:"data_dir"`
		Engine  string `yaml:"engine"`
	} `yaml:"store"`

	Ingestion struct {
		Workers       int      `yaml:"workers"`
		BatchSize     int      `yaml:"batch_size"`
		ExcludeGlobs  []string `yaml:"exclude_globs"`
		EmbedEntities bool     `yaml:"embed_entities"`
	} `yaml:"ingestion"`

	Query struct {
		RowCeiling int `yaml:"row_ceiling"`
	} `yaml:"query"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration written by 'parseltongue init'
// when the user accepts the defaults.
func DefaultConfig(projectID, workspace string) *Config {
	cfg := &Config{ProjectID: projectID, Workspace: workspace, LogLevel: "info"}
	cfg.Store.Engine = "rocksdb"
	cfg.Ingestion.Workers = 8
	cfg.Ingestion.BatchSize = 500
	cfg.Ingestion.ExcludeGlobs = []string{
		".git/**", "node_modules/**", "vendor/**",
		"dist/**", "build/**", "target/**",
		"*.min.js", "*.generated.go",
	}
	cfg.Query.RowCeiling = 300
	return cfg
}

// ConfigDir returns the .parseltongue directory under root.
func ConfigDir(root string) string {
	return filepath.Join(root, ".parseltongue")
}

// ConfigPath returns the project.yaml path under root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "project.yaml")
}

// SaveConfig writes cfg as YAML to path.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadConfig reads and parses the project.yaml at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfigPath returns configPath if set, otherwise ConfigPath(cwd).
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return ConfigPath(cwd), nil
}
