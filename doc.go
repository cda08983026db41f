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

// Package repochat answers natural-language questions about source code
// repositories by combining vector retrieval over the repository's files
// with a streaming LLM provider.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/repochat/cmd/repochat@latest
//
// Ask a question from the terminal:
//
//	repochat chat https://github.com/owner/repo -q "How does the cache work?"
//
// Or start the HTTP server:
//
//	repochat serve --port 8080
//
// # Using as a Go Library
//
// The engine is the programmatic entry point:
//
//	import (
//	    "github.com/kadirpekel/repochat/pkg/config"
//	    "github.com/kadirpekel/repochat/pkg/engine"
//	)
//
//	cfg, _ := config.Load("")
//	eng, _ := engine.New(cfg)
//	defer eng.Close()
//
// # Architecture
//
// A query flows through a staged pipeline:
//
//	acquire → walk → chunk → embed → persist   (ingestion, once per repo)
//	retrieve → assemble → generate → record    (per query, streaming)
//
// Repositories are indexed independently; multi-repository questions fan
// out to one pipeline per repository and merge the streamed answers.
// Eight generator provider families share one streaming contract, and
// the persisted vector index reconciles mixed embedding dimensions on
// load so partially re-embedded corpora stay searchable.
//
// Key packages:
//
//   - pkg/engine — the query pipeline, deep research, multi-repo fan-out
//   - pkg/rag — file walking, chunking, ingestion
//   - pkg/llms — generator providers (openai, azure, openrouter, bedrock,
//     dashscope, private, ollama, google)
//   - pkg/embedders — embedding providers (openai, ollama, google)
//   - pkg/vector — the persisted index and similarity search
//   - pkg/server — the HTTP surface
package repochat
