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
	"os"
	"strings"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/httpclient"
)

const (
	envPrivateBaseURL = "PRIVATE_MODEL_BASE_URL"

	envPrivateCACert      = "PRIVATE_MODEL_CA_CERT"
	envPrivateInsecureTLS = "PRIVATE_MODEL_INSECURE_SKIP_VERIFY"
)

// NewPrivateProvider targets an arbitrary OpenAI-compatible endpoint,
// typically a self-hosted inference server behind an internal CA. The
// base URL is required; the API key is optional because many internal
// deployments authenticate at the network layer.
func NewPrivateProvider(binding config.Binding) (*OpenAIProvider, error) {
	base := strings.TrimSuffix(os.Getenv(envPrivateBaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("private provider requires a base URL: set %s", envPrivateBaseURL)
	}

	apiKey := config.ProviderAPIKey(config.ProviderPrivate)
	headers := map[string]string{}
	if apiKey != "" {
		headers = bearerHeaders(apiKey)
	}

	var extraOpts []httpclient.Option
	caCert := os.Getenv(envPrivateCACert)
	insecure := os.Getenv(envPrivateInsecureTLS) == "true"
	if caCert != "" || insecure {
		tlsOpt, err := httpclient.WithTLSConfig(&httpclient.TLSConfig{
			CACertificate:      caCert,
			InsecureSkipVerify: insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("private provider TLS setup failed: %w", err)
		}
		extraOpts = append(extraOpts, tlsOpt)
	}

	return newOpenAICompatible(config.ProviderPrivate, base+"/chat/completions", apiKey, headers, binding, extraOpts...), nil
}
