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

package config

import (
	"fmt"
	"sort"
)

// Provider names recognized by the generator configuration.
const (
	ProviderOpenAI     = "openai"
	ProviderAzure      = "azure"
	ProviderOpenRouter = "openrouter"
	ProviderBedrock    = "bedrock"
	ProviderDashScope  = "dashscope"
	ProviderPrivate    = "private"
	ProviderOllama     = "ollama"
	ProviderGoogle     = "google"
)

// GeneratorConfig is the decoded form of generator.json: the catalog of
// chat providers, their models, and the research policy knobs.
type GeneratorConfig struct {
	// DefaultProvider is used when a request names no provider.
	DefaultProvider string `json:"default_provider,omitempty" jsonschema:"title=Default Provider,description=Provider used when a request names none"`

	// Providers maps provider name to its model catalog.
	Providers map[string]*ProviderModels `json:"providers,omitempty" jsonschema:"title=Providers,description=Per-provider model catalog"`

	// Research tunes the deep-research iteration policy.
	Research ResearchConfig `json:"research,omitempty" jsonschema:"title=Research,description=Deep research iteration policy"`

	// Memory bounds per-session conversation history.
	Memory MemoryConfig `json:"memory,omitempty" jsonschema:"title=Memory,description=Per-session conversation bounds"`
}

// ProviderModels is one provider's entry in generator.json.
type ProviderModels struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string `json:"default_model,omitempty" jsonschema:"title=Default Model"`

	// SupportsCustomModel accepts model names outside the catalog.
	SupportsCustomModel bool `json:"supportsCustomModel,omitempty" jsonschema:"title=Supports Custom Model,description=Accept model names not listed under models"`

	// Models maps model name to its sampling parameters.
	Models map[string]*ModelParams `json:"models,omitempty" jsonschema:"title=Models"`
}

// ModelParams are per-model sampling parameters. Pointer fields
// distinguish "unset" from zero.
type ModelParams struct {
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"title=Temperature,minimum=0,maximum=2"`
	TopP        *float64 `json:"top_p,omitempty" jsonschema:"title=Top P,minimum=0,maximum=1"`
	MaxTokens   int      `json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,minimum=1"`
}

// ResearchConfig tunes the deep-research state machine.
type ResearchConfig struct {
	// FinalIteration is the iteration at which research must conclude.
	FinalIteration int `json:"final_iteration,omitempty" jsonschema:"title=Final Iteration,description=Iteration at which deep research synthesizes its conclusion,minimum=1,default=5"`
}

// MemoryConfig bounds per-session conversation history.
type MemoryConfig struct {
	// MaxTurns caps the turns kept per session.
	MaxTurns int `json:"max_turns,omitempty" jsonschema:"title=Max Turns,minimum=1,default=50"`

	// AutoCleanup drops the oldest turns on overflow. When false,
	// appends past the cap fail instead.
	AutoCleanup *bool `json:"auto_cleanup,omitempty" jsonschema:"title=Auto Cleanup,default=true"`
}

// AutoCleanupEnabled reports the effective cleanup policy; unset means on.
func (c MemoryConfig) AutoCleanupEnabled() bool {
	return c.AutoCleanup == nil || *c.AutoCleanup
}

// EmbedderSettings is the decoded form of embedder.json: the embedder
// binding plus retriever and text-splitter parameters.
type EmbedderSettings struct {
	Embedder     EmbedderConfig     `json:"embedder,omitempty" jsonschema:"title=Embedder"`
	Retriever    RetrieverConfig    `json:"retriever,omitempty" jsonschema:"title=Retriever"`
	TextSplitter TextSplitterConfig `json:"text_splitter,omitempty" jsonschema:"title=Text Splitter"`
	VectorStore  VectorStoreConfig  `json:"vector_store,omitempty" jsonschema:"title=Vector Store"`
}

// EmbedderConfig selects and parameterizes the embedding provider.
type EmbedderConfig struct {
	// Provider is one of openai, ollama, google.
	Provider string `json:"provider,omitempty" jsonschema:"title=Provider,enum=openai,enum=ollama,enum=google,default=openai"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty" jsonschema:"title=Model"`

	// APIKey for remote providers. Supports ${ENV_VAR} placeholders.
	APIKey string `json:"api_key,omitempty" jsonschema:"title=API Key,description=Credential for remote providers (use ${ENV_VAR})"`

	// BaseURL overrides the provider endpoint. For ollama this is the
	// server address, default http://localhost:11434.
	BaseURL string `json:"base_url,omitempty" jsonschema:"title=Base URL"`

	// Dimension of the produced vectors. Zero means the provider default.
	Dimension int `json:"dimension,omitempty" jsonschema:"title=Dimension,minimum=1"`

	// BatchSize caps texts per embedding request.
	BatchSize int `json:"batch_size,omitempty" jsonschema:"title=Batch Size,minimum=1,default=100"`

	// Timeout per request, in seconds.
	Timeout int `json:"timeout,omitempty" jsonschema:"title=Timeout,minimum=1,default=30"`

	// MaxRetries for transient failures.
	MaxRetries int `json:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0,default=3"`
}

// RetrieverConfig parameterizes similarity retrieval.
type RetrieverConfig struct {
	// TopK is how many chunks a query retrieves.
	TopK int `json:"top_k,omitempty" jsonschema:"title=Top K,minimum=1,default=20"`
}

// TextSplitterConfig parameterizes chunking.
type TextSplitterConfig struct {
	// ChunkSize is the per-chunk token cap.
	ChunkSize int `json:"chunk_size,omitempty" jsonschema:"title=Chunk Size,description=Token cap per chunk,minimum=1,default=350"`

	// ChunkOverlap is how many tokens consecutive chunks share.
	ChunkOverlap int `json:"chunk_overlap,omitempty" jsonschema:"title=Chunk Overlap,minimum=0,default=100"`
}

// VectorStoreConfig selects where reconciled vectors are searched.
// The default "memory" backend is the gob store plus the in-process
// index; external backends point retrieval at an existing cluster.
type VectorStoreConfig struct {
	// Type is one of memory, qdrant, pinecone.
	Type string `json:"type,omitempty" jsonschema:"title=Type,enum=memory,enum=qdrant,enum=pinecone,default=memory"`

	// Host for qdrant.
	Host string `json:"host,omitempty" jsonschema:"title=Host"`

	// Port for qdrant.
	Port int `json:"port,omitempty" jsonschema:"title=Port"`

	// APIKey for authenticated backends.
	APIKey string `json:"api_key,omitempty" jsonschema:"title=API Key"`

	// IndexName for pinecone.
	IndexName string `json:"index_name,omitempty" jsonschema:"title=Index Name"`

	// Namespace for pinecone.
	Namespace string `json:"namespace,omitempty" jsonschema:"title=Namespace"`
}

// RepoSettings is the decoded form of repo.json: default file filters
// applied when a request supplies none.
type RepoSettings struct {
	FileFilters FileFilterConfig `json:"file_filters,omitempty" jsonschema:"title=File Filters"`
}

// FileFilterConfig holds the default exclusion lists.
type FileFilterConfig struct {
	ExcludedDirs  []string `json:"excluded_dirs,omitempty" jsonschema:"title=Excluded Dirs,description=Directory names skipped during ingestion"`
	ExcludedFiles []string `json:"excluded_files,omitempty" jsonschema:"title=Excluded Files,description=File names skipped during ingestion"`
}

// SetDefaults fills the full provider catalog. Providers already present
// keep their values; missing ones get the built-in catalog entry.
func (c *GeneratorConfig) SetDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = ProviderGoogle
	}
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderModels)
	}
	for name, models := range defaultProviderCatalog() {
		if _, ok := c.Providers[name]; !ok {
			c.Providers[name] = models
		}
	}
	if c.Research.FinalIteration == 0 {
		c.Research.FinalIteration = 5
	}
	if c.Memory.MaxTurns == 0 {
		c.Memory.MaxTurns = 50
	}
}

// Validate checks the generator configuration.
func (c *GeneratorConfig) Validate() error {
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("default_provider %q is not a configured provider", c.DefaultProvider)
	}
	for name, p := range c.Providers {
		if p == nil {
			return fmt.Errorf("provider %q has no configuration", name)
		}
		if p.DefaultModel != "" && !p.SupportsCustomModel {
			if _, ok := p.Models[p.DefaultModel]; !ok {
				return fmt.Errorf("provider %q: default_model %q is not in its model list", name, p.DefaultModel)
			}
		}
	}
	if c.Research.FinalIteration < 1 {
		return fmt.Errorf("research.final_iteration must be at least 1")
	}
	if c.Memory.MaxTurns < 1 {
		return fmt.Errorf("memory.max_turns must be at least 1")
	}
	return nil
}

// ProviderNames returns the configured provider names, sorted.
func (c *GeneratorConfig) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefaults applies embedder, retriever, and splitter defaults.
func (c *EmbedderSettings) SetDefaults() {
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = ProviderOpenAI
	}
	if c.Embedder.Model == "" {
		switch c.Embedder.Provider {
		case ProviderOllama:
			c.Embedder.Model = "nomic-embed-text"
		case ProviderGoogle:
			c.Embedder.Model = "text-embedding-004"
		default:
			c.Embedder.Model = "text-embedding-3-small"
		}
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 100
	}
	if c.Embedder.Timeout == 0 {
		c.Embedder.Timeout = 30
	}
	if c.Embedder.MaxRetries == 0 {
		c.Embedder.MaxRetries = 3
	}
	if c.Retriever.TopK == 0 {
		c.Retriever.TopK = 20
	}
	if c.TextSplitter.ChunkSize == 0 {
		c.TextSplitter.ChunkSize = 350
	}
	if c.TextSplitter.ChunkOverlap == 0 {
		c.TextSplitter.ChunkOverlap = 100
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "memory"
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}
}

// Validate checks the embedder settings.
func (c *EmbedderSettings) Validate() error {
	switch c.Embedder.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderGoogle:
	default:
		return fmt.Errorf("invalid embedder provider %q (valid: openai, ollama, google)", c.Embedder.Provider)
	}
	if c.Retriever.TopK < 1 {
		return fmt.Errorf("retriever.top_k must be at least 1")
	}
	if c.TextSplitter.ChunkSize < 1 {
		return fmt.Errorf("text_splitter.chunk_size must be at least 1")
	}
	if c.TextSplitter.ChunkOverlap < 0 || c.TextSplitter.ChunkOverlap >= c.TextSplitter.ChunkSize {
		return fmt.Errorf("text_splitter.chunk_overlap must be smaller than chunk_size")
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Host == "" {
			return fmt.Errorf("vector_store.host is required for qdrant")
		}
	case "pinecone":
		if c.VectorStore.APIKey == "" {
			return fmt.Errorf("vector_store.api_key is required for pinecone")
		}
		if c.VectorStore.IndexName == "" {
			return fmt.Errorf("vector_store.index_name is required for pinecone")
		}
	default:
		return fmt.Errorf("invalid vector_store type %q (valid: memory, qdrant, pinecone)", c.VectorStore.Type)
	}
	return nil
}

// SetDefaults fills the default exclusion lists when repo.json supplies
// none. The lists cover lockfiles, caches, virtual environments, build
// outputs, and hidden VCS directories.
func (c *RepoSettings) SetDefaults() {
	if len(c.FileFilters.ExcludedDirs) == 0 {
		c.FileFilters.ExcludedDirs = defaultExcludedDirs()
	}
	if len(c.FileFilters.ExcludedFiles) == 0 {
		c.FileFilters.ExcludedFiles = defaultExcludedFiles()
	}
}

// Validate checks the repo settings.
func (c *RepoSettings) Validate() error {
	return nil
}

func defaultExcludedDirs() []string {
	return []string{
		".git", ".svn", ".hg", ".bzr",
		".venv", "venv", "env", "virtualenv",
		"node_modules", "bower_components", "jspm_packages",
		"__pycache__", ".pytest_cache", ".mypy_cache", ".ruff_cache",
		".gradle", ".cache", ".tox",
		"dist", "build", "out", "target", "bin", "obj",
		".idea", ".vscode", ".zed", ".cursor",
		".next", ".nuxt", ".terraform", "vendor",
	}
}

func defaultExcludedFiles() []string {
	return []string{
		"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"npm-shrinkwrap.json", "poetry.lock", "Pipfile.lock",
		"Cargo.lock", "composer.lock", "Gemfile.lock", "go.sum",
		".DS_Store", "Thumbs.db", "desktop.ini",
		".env", ".env.local", ".flaskenv",
		".gitignore", ".gitattributes", ".gitmodules",
		".prettierrc", ".eslintrc", ".eslintignore",
		".stylelintrc", ".editorconfig", ".dockerignore",
		"yarn-error.log", "npm-debug.log",
	}
}

func defaultProviderCatalog() map[string]*ProviderModels {
	return map[string]*ProviderModels{
		ProviderOpenAI: {
			DefaultModel: "gpt-4o",
			Models: map[string]*ModelParams{
				"gpt-4o":      {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gpt-4o-mini": {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gpt-4.1":     {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"o1":          {},
				"o3":          {},
				"o4-mini":     {},
			},
		},
		ProviderAzure: {
			DefaultModel: "gpt-4o",
			Models: map[string]*ModelParams{
				"gpt-4o":      {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gpt-4o-mini": {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"o4-mini":     {},
			},
		},
		ProviderOpenRouter: {
			DefaultModel: "openai/gpt-4o",
			Models: map[string]*ModelParams{
				"openai/gpt-4o":               {Temperature: floatPtr(0.7)},
				"anthropic/claude-3.7-sonnet": {Temperature: floatPtr(0.7)},
				"deepseek/deepseek-r1":        {Temperature: floatPtr(0.7)},
				"meta-llama/llama-3.3-70b-instruct": {
					Temperature: floatPtr(0.7),
				},
			},
		},
		ProviderBedrock: {
			DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Models: map[string]*ModelParams{
				"anthropic.claude-3-5-sonnet-20241022-v2:0": {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"amazon.nova-pro-v1:0":                      {Temperature: floatPtr(0.7)},
				"meta.llama3-1-70b-instruct-v1:0":           {Temperature: floatPtr(0.7)},
			},
		},
		ProviderDashScope: {
			DefaultModel: "qwen-plus",
			Models: map[string]*ModelParams{
				"qwen-plus":   {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"qwen-turbo":  {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"deepseek-r1": {},
			},
		},
		ProviderPrivate: {
			SupportsCustomModel: true,
			Models:              map[string]*ModelParams{},
		},
		ProviderOllama: {
			DefaultModel:        "llama3.2",
			SupportsCustomModel: true,
			Models: map[string]*ModelParams{
				"llama3.2":  {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"qwen3:8b":  {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"mistral":   {Temperature: floatPtr(0.7)},
				"codellama": {Temperature: floatPtr(0.7)},
			},
		},
		ProviderGoogle: {
			DefaultModel: "gemini-2.0-flash",
			Models: map[string]*ModelParams{
				"gemini-2.0-flash":   {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gemini-2.5-flash":   {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gemini-2.5-pro":     {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gemini-1.5-flash":   {Temperature: floatPtr(0.7), TopP: floatPtr(0.8)},
				"gemini-2.0-flash-lite": {
					Temperature: floatPtr(0.7), TopP: floatPtr(0.8),
				},
			},
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
