package embedders

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kadirpekel/repochat/pkg/config"
)

// GoogleEmbedder embeds through the Gemini embedding API.
type GoogleEmbedder struct {
	client     *genai.Client
	model      string
	dimension  int
	requestDim int32
}

func NewGoogleEmbedder(cfg *config.EmbedderConfig) (*GoogleEmbedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = config.ProviderAPIKey(config.ProviderGoogle)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("google embedder requires an API key: set %s", config.ProviderKeyEnvVar(config.ProviderGoogle))
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}

	dimension := cfg.Dimension
	var requestDim int32
	if dimension > 0 {
		requestDim = int32(dimension)
	} else {
		dimension = 768
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleEmbedder{
		client:     client,
		model:      model,
		dimension:  dimension,
		requestDim: requestDim,
	}, nil
}

// Embed produces one vector per input text, in input order.
func (e *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.Text(text)...)
	}

	var embedConfig *genai.EmbedContentConfig
	if e.requestDim > 0 {
		embedConfig = &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(e.requestDim),
		}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, embedConfig)
	if err != nil {
		return nil, fmt.Errorf("google embedding failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("requested %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	results := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("received empty embedding for input %d", i)
		}
		results[i] = emb.Values
	}

	if err := ensureHomogeneous(results); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *GoogleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

func (e *GoogleEmbedder) GetDimension() int {
	return e.dimension
}

func (e *GoogleEmbedder) GetModelName() string {
	return e.model
}

func (e *GoogleEmbedder) Close() error {
	return nil
}
