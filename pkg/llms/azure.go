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

package llms

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kadirpekel/repochat/pkg/config"
)

const (
	envAzureEndpoint = "AZURE_OPENAI_ENDPOINT"
	envAzureVersion  = "AZURE_OPENAI_VERSION"

	defaultAzureVersion = "2024-12-01-preview"
)

// NewAzureProvider builds an Azure OpenAI provider. Azure routes by
// deployment rather than model: the binding's model name is used as the
// deployment name. Credentials come from AZURE_OPENAI_API_KEY and the
// resource endpoint from AZURE_OPENAI_ENDPOINT.
func NewAzureProvider(binding config.Binding) (*OpenAIProvider, error) {
	apiKey := config.ProviderAPIKey(config.ProviderAzure)
	if apiKey == "" {
		return nil, &AuthError{
			Provider: config.ProviderAzure,
			Hint:     config.ProviderKeyEnvVar(config.ProviderAzure),
			Err:      fmt.Errorf("no API key configured"),
		}
	}

	endpoint := strings.TrimSuffix(os.Getenv(envAzureEndpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("azure provider requires a resource endpoint: set %s", envAzureEndpoint)
	}

	version := os.Getenv(envAzureVersion)
	if version == "" {
		version = defaultAzureVersion
	}

	chatURL := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		endpoint, url.PathEscape(binding.Model), url.QueryEscape(version))

	return newOpenAICompatible(config.ProviderAzure, chatURL, apiKey,
		map[string]string{"api-key": apiKey}, binding), nil
}
