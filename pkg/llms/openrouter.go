package llms

import (
	"fmt"

	"github.com/kadirpekel/repochat/pkg/config"
)

const openRouterChatURL = "https://openrouter.ai/api/v1/chat/completions"

// NewOpenRouterProvider builds a provider for the OpenRouter gateway,
// which fronts many upstream models behind the OpenAI wire format.
func NewOpenRouterProvider(binding config.Binding) (*OpenAIProvider, error) {
	apiKey := config.ProviderAPIKey(config.ProviderOpenRouter)
	if apiKey == "" {
		return nil, &AuthError{
			Provider: config.ProviderOpenRouter,
			Hint:     config.ProviderKeyEnvVar(config.ProviderOpenRouter),
			Err:      fmt.Errorf("no API key configured"),
		}
	}

	headers := bearerHeaders(apiKey)
	// Attribution headers OpenRouter uses for ranking and abuse triage.
	headers["HTTP-Referer"] = "https://github.com/kadirpekel/repochat"
	headers["X-Title"] = "RepoChat"

	return newOpenAICompatible(config.ProviderOpenRouter, openRouterChatURL, apiKey, headers, binding), nil
}
