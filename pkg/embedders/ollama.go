package embedders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/ollama"
)

// Ollama's llama runner crashes when it receives concurrent embedding
// requests, so every request in the process serializes behind this mutex.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder embeds through a local Ollama server. The server API
// accepts one string per request, so batches serialize internally.
type OllamaEmbedder struct {
	client    *ollama.Client
	model     string
	dimension int

	mu      sync.Mutex
	checked bool
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedder(cfg *config.EmbedderConfig) (*OllamaEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 768
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}

	// Local models cold-load; give them far more room than remote APIs.
	timeout := 300 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &OllamaEmbedder{
		client:    ollama.NewClientWithTimeout(baseURL, timeout),
		model:     model,
		dimension: dimension,
	}, nil
}

// ensureModel verifies the model is installed before the first embedding
// call. A missing model is fatal and names the exact install command; an
// unreachable server is retried on the next call.
func (e *OllamaEmbedder) ensureModel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checked {
		return nil
	}

	ok, err := e.client.HasModel(ctx, e.model)
	if err != nil {
		return fmt.Errorf("cannot verify ollama model availability: %w", err)
	}
	if !ok {
		return fmt.Errorf("embedding model %q is not installed; run: ollama pull %s", e.model, e.model)
	}

	e.checked = true
	return nil
}

// Embed produces one vector per input text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.ensureModel(ctx); err != nil {
		return nil, err
	}

	results := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d of %d: %w", i+1, len(texts), err)
		}
		results = append(results, vec)
	}

	if err := ensureHomogeneous(results); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	slog.Debug("Ollama embedding request", "model", e.model, "text_length", len(text))

	resp, err := e.client.MakeRequest(ctx, "/api/embeddings", ollamaEmbedRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send request to ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding from ollama")
	}

	return response.Embedding, nil
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.ensureModel(ctx); err != nil {
		return nil, err
	}
	return e.embedOne(ctx, text)
}

func (e *OllamaEmbedder) GetDimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) GetModelName() string {
	return e.model
}

func (e *OllamaEmbedder) Close() error {
	return nil
}
