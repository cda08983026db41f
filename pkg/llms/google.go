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
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kadirpekel/repochat/pkg/config"
)

// GoogleProvider generates through the Gemini API using the genai SDK's
// native streaming iterator.
type GoogleProvider struct {
	client *genai.Client
	model  string

	maxTokens   int
	temperature *float64
	topP        *float64
}

func NewGoogleProvider(ctx context.Context, binding config.Binding) (*GoogleProvider, error) {
	apiKey := config.ProviderAPIKey(config.ProviderGoogle)
	if apiKey == "" {
		return nil, &AuthError{
			Provider: config.ProviderGoogle,
			Hint:     config.ProviderKeyEnvVar(config.ProviderGoogle),
			Err:      fmt.Errorf("no API key configured"),
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleProvider{
		client:      client,
		model:       binding.Model,
		maxTokens:   binding.Params.MaxTokens,
		temperature: binding.Params.Temperature,
		topP:        binding.Params.TopP,
	}, nil
}

func (p *GoogleProvider) buildContents(req *Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if t := firstFloat(req.Temperature, p.temperature); t != nil {
		cfg.Temperature = genai.Ptr(float32(*t))
	}
	if t := firstFloat(req.TopP, p.topP); t != nil {
		cfg.TopP = genai.Ptr(float32(*t))
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	return contents, cfg
}

func (p *GoogleProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents, cfg := p.buildContents(req)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, p.classifyError(err)
	}

	out := &Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func (p *GoogleProvider) GenerateStreaming(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		if err := p.streamInto(ctx, req, out); err != nil {
			out <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()
	return out, nil
}

func (p *GoogleProvider) streamInto(ctx context.Context, req *Request, out chan<- StreamChunk) error {
	contents, cfg := p.buildContents(req)

	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.classifyError(err)
		}
		if text := resp.Text(); text != "" {
			select {
			case out <- StreamChunk{Type: ChunkTypeText, Text: text}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	out <- StreamChunk{Type: ChunkTypeDone}
	return nil
}

func (p *GoogleProvider) classifyError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "API key not valid") ||
		strings.Contains(msg, "UNAUTHENTICATED") ||
		strings.Contains(msg, "PERMISSION_DENIED") {
		return &AuthError{
			Provider: config.ProviderGoogle,
			Hint:     config.ProviderKeyEnvVar(config.ProviderGoogle),
			Err:      err,
		}
	}
	return fmt.Errorf("google generation failed: %w", err)
}

func (p *GoogleProvider) GetModelName() string { return p.model }

func (p *GoogleProvider) GetMaxTokens() int { return p.maxTokens }

func (p *GoogleProvider) Close() error { return nil }
