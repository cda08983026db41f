package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerator() *GeneratorConfig {
	g := &GeneratorConfig{}
	g.SetDefaults()
	return g
}

func TestResolveBindingDefaults(t *testing.T) {
	g := testGenerator()

	b, err := g.ResolveBinding("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, b.Provider)
	assert.Equal(t, "gemini-2.0-flash", b.Model)
	require.NotNil(t, b.Params.Temperature)
	assert.InDelta(t, 0.7, *b.Params.Temperature, 1e-9)
}

func TestResolveBindingExplicitModel(t *testing.T) {
	g := testGenerator()

	b, err := g.ResolveBinding("openai", "o4-mini", nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Provider)
	assert.Equal(t, "o4-mini", b.Model)
	assert.Nil(t, b.Params.Temperature, "reasoning models carry no sampling params")
}

func TestResolveBindingUnknownProvider(t *testing.T) {
	g := testGenerator()

	_, err := g.ResolveBinding("nope", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "nope"`)
}

func TestResolveBindingUnknownModel(t *testing.T) {
	g := testGenerator()

	_, err := g.ResolveBinding("openai", "made-up-model", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown model "made-up-model"`)
}

func TestResolveBindingCustomModelAllowed(t *testing.T) {
	g := testGenerator()

	// Ollama accepts models outside the catalog.
	b, err := g.ResolveBinding("ollama", "some-local-finetune", nil)
	require.NoError(t, err)
	assert.Equal(t, "some-local-finetune", b.Model)
	assert.Nil(t, b.Params.Temperature)
}

func TestResolveBindingNoModelNoDefault(t *testing.T) {
	g := testGenerator()

	// The private provider ships without a default model.
	_, err := g.ResolveBinding("private", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model specified")
}

func TestResolveBindingOverrides(t *testing.T) {
	g := testGenerator()

	temp := 0.1
	b, err := g.ResolveBinding("openai", "gpt-4o", &ModelParams{
		Temperature: &temp,
		MaxTokens:   512,
	})
	require.NoError(t, err)
	require.NotNil(t, b.Params.Temperature)
	assert.InDelta(t, 0.1, *b.Params.Temperature, 1e-9)
	assert.Equal(t, 512, b.Params.MaxTokens)
	require.NotNil(t, b.Params.TopP, "unoverridden params survive the merge")
	assert.InDelta(t, 0.8, *b.Params.TopP, 1e-9)
}
