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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/ollama"
)

// OllamaProvider generates through a local Ollama server's /api/chat
// endpoint, which streams newline-delimited JSON.
type OllamaProvider struct {
	client *ollama.Client
	model  string

	maxTokens   int
	temperature *float64
	topP        *float64

	mu      sync.Mutex
	checked bool
}

// NewOllamaProvider builds the local provider. The server address comes
// from OLLAMA_HOST and defaults to localhost:11434; no credential is
// involved.
func NewOllamaProvider(binding config.Binding) (*OllamaProvider, error) {
	return &OllamaProvider{
		client:      ollama.NewClientWithTimeout(os.Getenv("OLLAMA_HOST"), localProviderTimeout),
		model:       binding.Model,
		maxTokens:   binding.Params.MaxTokens,
		temperature: binding.Params.Temperature,
		topP:        binding.Params.TopP,
	}, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaChatOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	EvalCount       int    `json:"eval_count,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ensureModel verifies the model is installed before the first call. A
// missing model is fatal and names the install command; an unreachable
// server is retried on the next call.
func (p *OllamaProvider) ensureModel(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked {
		return nil
	}

	ok, err := p.client.HasModel(ctx, p.model)
	if err != nil {
		return fmt.Errorf("cannot verify ollama model availability: %w", err)
	}
	if !ok {
		return fmt.Errorf("model %q is not installed; run: ollama pull %s", p.model, p.model)
	}

	p.checked = true
	return nil
}

func (p *OllamaProvider) buildRequest(req *Request, stream bool) ollamaChatRequest {
	messages := make([]ollamaChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaChatMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}

	opts := &ollamaChatOptions{}
	if req.Temperature != nil {
		opts.Temperature = req.Temperature
	} else {
		opts.Temperature = p.temperature
	}
	if req.TopP != nil {
		opts.TopP = req.TopP
	} else {
		opts.TopP = p.topP
	}
	if req.MaxTokens > 0 {
		opts.NumPredict = req.MaxTokens
	} else if p.maxTokens > 0 {
		opts.NumPredict = p.maxTokens
	}
	if opts.Temperature == nil && opts.TopP == nil && opts.NumPredict == 0 {
		opts = nil
	}

	return ollamaChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
		Options:  opts,
	}
}

func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := p.ensureModel(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.MakeRequest(ctx, "/api/chat", p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("ollama API error: %s", parsed.Error)
	}

	return &Response{
		Text:   parsed.Message.Content,
		Tokens: parsed.EvalCount + parsed.PromptEvalCount,
	}, nil
}

func (p *OllamaProvider) GenerateStreaming(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		if err := p.streamInto(ctx, req, out); err != nil {
			out <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()
	return out, nil
}

func (p *OllamaProvider) streamInto(ctx context.Context, req *Request, out chan<- StreamChunk) error {
	if err := p.ensureModel(ctx); err != nil {
		return err
	}

	resp, err := p.client.MakeStreamingRequest(ctx, "/api/chat", p.buildRequest(req, true))
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama API error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			select {
			case out <- StreamChunk{Type: ChunkTypeText, Text: chunk.Message.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to read ollama stream: %w", err)
	}

	out <- StreamChunk{Type: ChunkTypeDone}
	return nil
}

func (p *OllamaProvider) GetModelName() string { return p.model }

func (p *OllamaProvider) GetMaxTokens() int { return p.maxTokens }

func (p *OllamaProvider) Close() error { return nil }
