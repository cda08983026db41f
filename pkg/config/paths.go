package config

import (
	"os"
	"path/filepath"
)

// Environment variables recognized by the process.
const (
	EnvRoot      = "REPOCHAT_ROOT"
	EnvConfigDir = "REPOCHAT_CONFIG_DIR"
	EnvAuthMode  = "REPOCHAT_AUTH_MODE"
	EnvAuthCode  = "REPOCHAT_AUTH_CODE"
)

// DataRoot returns the directory holding cloned repos, serialized
// indexes, and wiki cache blobs. Defaults to ~/.repochat.
func DataRoot() string {
	if root := os.Getenv(EnvRoot); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repochat"
	}
	return filepath.Join(home, ".repochat")
}

// ReposDir is where cloned trees live.
func ReposDir() string {
	return filepath.Join(DataRoot(), "repos")
}

// DatabasesDir is where serialized indexes live.
func DatabasesDir() string {
	return filepath.Join(DataRoot(), "databases")
}

// WikiCacheDir is where wiki cache blobs live.
func WikiCacheDir() string {
	return filepath.Join(DataRoot(), "wikicache")
}

// Dir returns the configuration directory, default ./config.
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	return "./config"
}

// AuthRequired reports whether the access-code gate is enabled.
func AuthRequired() bool {
	switch os.Getenv(EnvAuthMode) {
	case "true", "1", "on":
		return true
	}
	return false
}

// ValidateAuthCode compares a submitted code with the configured one.
// Always false when auth is not enabled with a non-empty code.
func ValidateAuthCode(code string) bool {
	want := os.Getenv(EnvAuthCode)
	return want != "" && code == want
}

// ProviderKeyEnvVar names the environment variable holding the credential
// for a generator provider. Empty for providers that authenticate some
// other way (bedrock uses the AWS credential chain, ollama none).
func ProviderKeyEnvVar(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAzure:
		return "AZURE_OPENAI_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderDashScope:
		return "DASHSCOPE_API_KEY"
	case ProviderPrivate:
		return "PRIVATE_MODEL_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// ProviderAPIKey reads the provider's credential from the environment.
func ProviderAPIKey(provider string) string {
	if v := ProviderKeyEnvVar(provider); v != "" {
		return os.Getenv(v)
	}
	return ""
}
