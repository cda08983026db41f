package embedders

import (
	"context"
	"fmt"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/registry"
)

// Embedder produces fixed-dimension vectors for batches of texts.
// Implementations preserve input order and enforce a homogeneous
// dimension per call; mismatches are errors, never coerced.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	GetDimension() int

	GetModelName() string

	Close() error
}

// NewEmbedder builds the embedder selected by the configuration.
func NewEmbedder(cfg *config.EmbedderConfig) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config cannot be nil")
	}

	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	case config.ProviderGoogle:
		return NewGoogleEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s (supported: openai, ollama, google)", cfg.Provider)
	}
}

type EmbedderRegistry struct {
	*registry.BaseRegistry[Embedder]
}

func NewEmbedderRegistry() *EmbedderRegistry {
	return &EmbedderRegistry{
		BaseRegistry: registry.NewBaseRegistry[Embedder](),
	}
}

func (r *EmbedderRegistry) RegisterEmbedder(name string, provider Embedder) error {
	if name == "" {
		return fmt.Errorf("embedder name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("embedder provider cannot be nil")
	}
	return r.Register(name, provider)
}

// CreateEmbedderFromConfig builds the configured embedder and registers
// it under name.
func (r *EmbedderRegistry) CreateEmbedderFromConfig(name string, cfg *config.EmbedderConfig) (Embedder, error) {
	if name == "" {
		return nil, fmt.Errorf("embedder name cannot be empty")
	}

	provider, err := NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder provider: %w", err)
	}

	if err := r.RegisterEmbedder(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register embedder: %w", err)
	}

	return provider, nil
}

func (r *EmbedderRegistry) GetEmbedder(name string) (Embedder, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("embedder provider '%s' not found", name)
	}
	return provider, nil
}

// ensureHomogeneous rejects a batch whose vectors disagree on dimension.
func ensureHomogeneous(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) != dim {
			return fmt.Errorf("embedding %d has dimension %d, batch started with %d", i, len(vec), dim)
		}
	}
	return nil
}
