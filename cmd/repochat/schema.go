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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/repochat/pkg/config"
)

// SchemaCmd generates a JSON Schema for one of the configuration files.
// The frontend config editor consumes it to build forms; output goes to
// stdout so it can be redirected.
type SchemaCmd struct {
	File string `arg:"" optional:"" help:"Which file to describe: generator, embedder, or repo." default:"generator"`

	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var schema *jsonschema.Schema
	switch c.File {
	case "generator":
		schema = reflector.Reflect(&config.GeneratorConfig{})
		schema.Title = "Generator Configuration"
		schema.Description = "Provider and model catalog for answer generation (generator.json)"
	case "embedder":
		schema = reflector.Reflect(&config.EmbedderSettings{})
		schema.Title = "Embedder Configuration"
		schema.Description = "Embedder, retriever, and text-splitter parameters (embedder.json)"
	case "repo":
		schema = reflector.Reflect(&config.RepoSettings{})
		schema.Title = "Repository Configuration"
		schema.Description = "Default file filters applied during ingestion (repo.json)"
	default:
		return fmt.Errorf("unknown config file %q (valid: generator, embedder, repo)", c.File)
	}
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
