package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/registry"
)

// New builds the provider selected by a resolved binding. Constructors
// that need a credential fail here, before any request is attempted.
func New(ctx context.Context, binding config.Binding) (Provider, error) {
	switch binding.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(binding)
	case config.ProviderAzure:
		return NewAzureProvider(binding)
	case config.ProviderOpenRouter:
		return NewOpenRouterProvider(binding)
	case config.ProviderBedrock:
		return NewBedrockProvider(ctx, binding)
	case config.ProviderDashScope:
		return NewDashScopeProvider(binding)
	case config.ProviderPrivate:
		return NewPrivateProvider(binding)
	case config.ProviderOllama:
		return NewOllamaProvider(binding)
	case config.ProviderGoogle:
		return NewGoogleProvider(ctx, binding)
	default:
		return nil, fmt.Errorf("unsupported generator provider %q", binding.Provider)
	}
}

// ProviderRegistry caches provider instances so concurrent queries share
// clients instead of re-dialing per request. Instances are keyed by
// provider and model; sampling overrides travel in the Request, so a
// cached instance serves every parameterization.
type ProviderRegistry struct {
	*registry.BaseRegistry[Provider]
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

func bindingKey(binding config.Binding) string {
	return binding.Provider + "/" + binding.Model
}

// Acquire returns the cached provider for a binding, constructing it on
// first use. Two goroutines racing on a cold key may both construct; the
// loser's instance is simply discarded.
func (r *ProviderRegistry) Acquire(ctx context.Context, binding config.Binding) (Provider, error) {
	key := bindingKey(binding)
	if p, ok := r.Get(key); ok {
		return p, nil
	}

	p, err := New(ctx, binding)
	if err != nil {
		return nil, err
	}
	if err := r.Register(key, p); err != nil {
		if cached, ok := r.Get(key); ok {
			_ = p.Close()
			return cached, nil
		}
		return nil, err
	}
	return p, nil
}

// RegisterFor seeds the cache with a pre-built provider for a binding.
// Callers that construct providers out of band use this to bypass New.
func (r *ProviderRegistry) RegisterFor(binding config.Binding, p Provider) error {
	return r.Register(bindingKey(binding), p)
}

// CloseAll releases every cached provider.
func (r *ProviderRegistry) CloseAll() {
	for _, p := range r.List() {
		_ = p.Close()
	}
}
