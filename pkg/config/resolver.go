package config

import "fmt"

// Binding is a fully specified generator selection: the merge of static
// provider config, per-request overrides, and catalog defaults. The query
// pipeline refuses to start without one.
type Binding struct {
	Provider string
	Model    string
	Params   ModelParams
}

// ResolveBinding merges the provider catalog with a request's provider
// and model choice. Empty provider falls back to the default provider;
// empty model falls back to the provider's default model. Unknown names
// fail early, except that providers marked supportsCustomModel accept
// any model name.
func (c *GeneratorConfig) ResolveBinding(provider, model string, overrides *ModelParams) (Binding, error) {
	if provider == "" {
		provider = c.DefaultProvider
	}
	p, ok := c.Providers[provider]
	if !ok || p == nil {
		return Binding{}, fmt.Errorf("unknown provider %q", provider)
	}

	if model == "" {
		model = p.DefaultModel
	}
	if model == "" {
		return Binding{}, fmt.Errorf("no model specified for provider %q and no default is configured", provider)
	}

	var params ModelParams
	if mp, found := p.Models[model]; found {
		if mp != nil {
			params = *mp
		}
	} else if !p.SupportsCustomModel {
		return Binding{}, fmt.Errorf("unknown model %q for provider %q", model, provider)
	}

	if overrides != nil {
		if overrides.Temperature != nil {
			params.Temperature = overrides.Temperature
		}
		if overrides.TopP != nil {
			params.TopP = overrides.TopP
		}
		if overrides.MaxTokens > 0 {
			params.MaxTokens = overrides.MaxTokens
		}
	}

	return Binding{Provider: provider, Model: model, Params: params}, nil
}
