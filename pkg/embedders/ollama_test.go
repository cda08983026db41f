package embedders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kadirpekel/repochat/pkg/config"
)

func newTestOllamaServer(t *testing.T, installed []string, embed func(prompt string) []float32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		type model struct {
			Name string `json:"name"`
		}
		var models []model
		for _, name := range installed {
			models = append(models, model{Name: name})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
	})
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: embed(req.Prompt)})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOllamaEmbedderPreservesOrder(t *testing.T) {
	server := newTestOllamaServer(t, []string{"nomic-embed-text:latest"}, func(prompt string) []float32 {
		return []float32{float32(len(prompt)), 0}
	})

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Provider: config.ProviderOllama,
		Model:    "nomic-embed-text",
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error: %v", err)
	}

	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("len(vectors) = %d, want 3", len(vectors))
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Errorf("vector %d = %v, want first component %v", i, vectors[i], want)
		}
	}
}

func TestOllamaEmbedderMissingModel(t *testing.T) {
	server := newTestOllamaServer(t, []string{"llama3.2:latest"}, func(string) []float32 {
		return []float32{1}
	})

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Provider: config.ProviderOllama,
		Model:    "nomic-embed-text",
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error: %v", err)
	}

	_, err = e.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("Embed() succeeded with missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull nomic-embed-text") {
		t.Errorf("error %q does not name the install command", err)
	}
}

func TestOllamaEmbedderChecksAvailabilityOnce(t *testing.T) {
	var tagCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		tagCalls++
		fmt.Fprint(w, `{"models":[{"name":"nomic-embed-text:latest"}]}`)
	})
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embedding":[0.5]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Provider: config.ProviderOllama,
		Model:    "nomic-embed-text",
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := e.EmbedQuery(context.Background(), "q"); err != nil {
			t.Fatalf("EmbedQuery() error: %v", err)
		}
	}
	if tagCalls != 1 {
		t.Errorf("availability checked %d times, want 1", tagCalls)
	}
}

func TestOllamaEmbedderEmptyEmbedding(t *testing.T) {
	server := newTestOllamaServer(t, []string{"nomic-embed-text"}, func(string) []float32 {
		return nil
	})

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Provider: config.ProviderOllama,
		Model:    "nomic-embed-text",
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error: %v", err)
	}

	_, err = e.EmbedQuery(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "empty embedding") {
		t.Fatalf("EmbedQuery() error = %v, want empty embedding", err)
	}
}

func TestOllamaEmbedderDefaults(t *testing.T) {
	e, err := NewOllamaEmbedder(&config.EmbedderConfig{Provider: config.ProviderOllama})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error: %v", err)
	}
	if e.GetModelName() != "nomic-embed-text" {
		t.Errorf("GetModelName() = %q", e.GetModelName())
	}
	if e.GetDimension() != 768 {
		t.Errorf("GetDimension() = %d, want 768", e.GetDimension())
	}
}
