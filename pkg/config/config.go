// Copyright 2025 Kadir Pekel
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

// Package config loads the three JSON configuration files (generator.json,
// embedder.json, repo.json), expands ${ENV_VAR} placeholders, and resolves
// provider/model bindings for the query pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
)

// File names looked up inside the config directory.
const (
	GeneratorFile = "generator.json"
	EmbedderFile  = "embedder.json"
	RepoFile      = "repo.json"
)

// Config is the merged view of all three configuration files. Missing
// files fall back to built-in defaults, so a zero-config start works.
type Config struct {
	Generator GeneratorConfig
	Embedder  EmbedderSettings
	Repo      RepoSettings

	// Dir the files were read from, for reload and diagnostics.
	Dir string
}

// Load reads the configuration directory, expands environment
// placeholders, decodes, applies defaults, and validates. Environment
// files (.env.local, .env) are loaded first so placeholders can see them.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = Dir()
	}

	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{Dir: dir}
	if err := loadFile(filepath.Join(dir, GeneratorFile), &cfg.Generator); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(dir, EmbedderFile), &cfg.Embedder); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(dir, RepoFile), &cfg.Repo); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Generator.SetDefaults()
	c.Embedder.SetDefaults()
	c.Repo.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("%s: %w", GeneratorFile, err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("%s: %w", EmbedderFile, err)
	}
	if err := c.Repo.Validate(); err != nil {
		return fmt.Errorf("%s: %w", RepoFile, err)
	}
	return nil
}

// loadFile reads one JSON config file into out. A missing file is not an
// error; defaults cover it.
func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("Config file not found, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	expanded, ok := ExpandEnvVarsInData(raw).(map[string]any)
	if !ok {
		return fmt.Errorf("failed to expand environment variables in %s", path)
	}

	if err := decode(expanded, out, filepath.Base(path)); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// decode binds a raw map onto a typed struct. Unknown keys are reported
// as warnings, never errors.
func decode(input map[string]any, out any, sourceName string) error {
	md := &mapstructure.Metadata{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		Metadata:         md,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}

	for _, key := range md.Unused {
		slog.Warn("Ignoring unknown config key", "file", sourceName, "key", key)
	}
	return nil
}
