package llms

import (
	"fmt"

	"github.com/kadirpekel/repochat/pkg/config"
)

// DashScope's OpenAI-compatible mode. The native mode has a different
// wire format; the compatible endpoint keeps this provider thin.
const dashScopeChatURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"

// NewDashScopeProvider builds a provider for Alibaba Cloud DashScope
// (Qwen model family).
func NewDashScopeProvider(binding config.Binding) (*OpenAIProvider, error) {
	apiKey := config.ProviderAPIKey(config.ProviderDashScope)
	if apiKey == "" {
		return nil, &AuthError{
			Provider: config.ProviderDashScope,
			Hint:     config.ProviderKeyEnvVar(config.ProviderDashScope),
			Err:      fmt.Errorf("no API key configured"),
		}
	}
	return newOpenAICompatible(config.ProviderDashScope, dashScopeChatURL, apiKey, bearerHeaders(apiKey), binding), nil
}
