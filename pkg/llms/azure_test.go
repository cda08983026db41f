package llms

import (
	"strings"
	"testing"

	"github.com/kadirpekel/repochat/pkg/config"
)

func TestNewAzureProviderBuildsDeploymentURL(t *testing.T) {
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://edge.openai.azure.com/")
	t.Setenv("AZURE_OPENAI_VERSION", "")

	p, err := NewAzureProvider(config.Binding{Provider: config.ProviderAzure, Model: "gpt-4o-eu"})
	if err != nil {
		t.Fatalf("NewAzureProvider() error: %v", err)
	}

	want := "https://edge.openai.azure.com/openai/deployments/gpt-4o-eu/chat/completions?api-version=2024-12-01-preview"
	if p.chatURL != want {
		t.Errorf("chatURL = %q, want %q", p.chatURL, want)
	}
	if p.headers["api-key"] != "az-key" {
		t.Errorf("azure authenticates with the api-key header, got %v", p.headers)
	}
}

func TestNewAzureProviderRequiresEndpoint(t *testing.T) {
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")

	_, err := NewAzureProvider(config.Binding{Provider: config.ProviderAzure, Model: "gpt-4o"})
	if err == nil || !strings.Contains(err.Error(), "AZURE_OPENAI_ENDPOINT") {
		t.Fatalf("NewAzureProvider() error = %v, want endpoint requirement", err)
	}
}
