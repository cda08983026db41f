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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/httpclient"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat completions wire format. The
// openrouter, dashscope, azure, and private providers reuse it with
// their own endpoint and headers.
type OpenAIProvider struct {
	providerName string
	model        string
	chatURL      string
	headers      map[string]string
	apiKey       string

	maxTokens   int
	temperature *float64
	topP        *float64

	client *httpclient.Client
}

// NewOpenAIProvider builds the stock OpenAI provider from a resolved
// binding. The credential comes from OPENAI_API_KEY.
func NewOpenAIProvider(binding config.Binding) (*OpenAIProvider, error) {
	apiKey := config.ProviderAPIKey(config.ProviderOpenAI)
	if apiKey == "" {
		return nil, &AuthError{
			Provider: config.ProviderOpenAI,
			Hint:     config.ProviderKeyEnvVar(config.ProviderOpenAI),
			Err:      fmt.Errorf("no API key configured"),
		}
	}
	return newOpenAICompatible(config.ProviderOpenAI, openAIBaseURL+"/chat/completions", apiKey, bearerHeaders(apiKey), binding), nil
}

// newOpenAICompatible wires the shared HTTP machinery: retries with
// provider rate-limit headers and a wall-clock budget, a header timeout
// for connection establishment, and a hard cap on one full generation.
func newOpenAICompatible(providerName, chatURL, apiKey string, headers map[string]string, binding config.Binding, extraOpts ...httpclient.Option) *OpenAIProvider {
	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{
			Timeout: remoteProviderTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: remoteHeaderTimeout,
			},
		}),
		httpclient.WithMaxRetries(3),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithRetryBudget(retryBudget),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	}
	opts = append(opts, extraOpts...)

	return &OpenAIProvider{
		providerName: providerName,
		model:        binding.Model,
		chatURL:      chatURL,
		headers:      headers,
		apiKey:       apiKey,
		maxTokens:    binding.Params.MaxTokens,
		temperature:  binding.Params.Temperature,
		topP:         binding.Params.TopP,
		client:       httpclient.New(opts...),
	}
}

func bearerHeaders(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Stream              bool          `json:"stream"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
	Temperature         *float64      `json:"temperature,omitempty"`
	TopP                *float64      `json:"top_p,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
	Error *apiError  `json:"error,omitempty"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (p *OpenAIProvider) buildRequest(req *Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	out := chatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if isReasoningModel(p.model) {
		// Reasoning models reject max_tokens and pin temperature to 1.0.
		if maxTokens > 0 {
			out.MaxCompletionTokens = &maxTokens
		}
		one := 1.0
		out.Temperature = &one
		return out
	}

	if maxTokens > 0 {
		out.MaxTokens = &maxTokens
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	} else if p.temperature != nil {
		out.Temperature = p.temperature
	}
	if req.TopP != nil {
		out.TopP = req.TopP
	} else if p.topP != nil {
		out.TopP = p.topP
	}
	return out
}

// isReasoningModel matches the o-series and gpt-5 families, which take
// max_completion_tokens instead of max_tokens.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	if m == "o1" || m == "o3" || m == "o4" || m == "gpt-5" {
		return true
	}
	for _, prefix := range []string{"o1-", "o3-", "o4-", "gpt-5-"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// apiStatusError turns a non-2xx response into an error. Credential
// rejections become AuthError with an env-var hint; the response detail
// is scrubbed so the key itself never surfaces.
func (p *OpenAIProvider) apiStatusError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	var parsed struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		detail = parsed.Error.Message
	}
	if len(detail) > 300 {
		detail = detail[:300]
	}
	detail = scrubSecret(detail, p.apiKey)

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{
			Provider: p.providerName,
			Hint:     config.ProviderKeyEnvVar(p.providerName),
			Err:      fmt.Errorf("API returned status %d: %s", status, detail),
		}
	}
	return fmt.Errorf("%s API error (status %d): %s", p.providerName, status, detail)
}

func (p *OpenAIProvider) do(ctx context.Context, request chatRequest) (*http.Response, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	// The client returns both a response and an error for statuses it
	// will not retry, so classify by status whenever a response exists.
	resp, err := p.client.Do(req)
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, p.apiStatusError(resp.StatusCode, respBody)
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%s request failed: %s", p.providerName, scrubSecret(err.Error(), p.apiKey))
	}
	return resp, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := p.do(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", p.providerName, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s API error: %s", p.providerName, scrubSecret(parsed.Error.Message, p.apiKey))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.providerName)
	}

	out := &Response{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		out.Tokens = parsed.Usage.TotalTokens
	}
	return out, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		if err := p.streamInto(ctx, req, out); err != nil {
			out <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) streamInto(ctx context.Context, req *Request, out chan<- StreamChunk) error {
	resp, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Some self-hosted gateways ignore stream=true and answer with a
	// plain completion object. Fold those into the stream contract.
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return p.streamFromComplete(resp.Body, out)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[len("data: "):]

		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var chunk chatStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return fmt.Errorf("%s API error: %s", p.providerName, scrubSecret(chunk.Error.Message, p.apiKey))
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			select {
			case out <- StreamChunk{Type: ChunkTypeText, Text: choice.Delta.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if choice.FinishReason == "stop" || choice.FinishReason == "length" {
			break
		}
	}

	out <- StreamChunk{Type: ChunkTypeDone}
	return nil
}

func (p *OpenAIProvider) streamFromComplete(body io.Reader, out chan<- StreamChunk) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", p.providerName, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("%s API error: %s", p.providerName, scrubSecret(parsed.Error.Message, p.apiKey))
	}
	if len(parsed.Choices) == 0 {
		return fmt.Errorf("%s returned no choices", p.providerName)
	}

	resp := &Response{Text: parsed.Choices[0].Message.Content}
	singleChunkStream(resp, out)
	return nil
}

func (p *OpenAIProvider) GetModelName() string { return p.model }

func (p *OpenAIProvider) GetMaxTokens() int { return p.maxTokens }

func (p *OpenAIProvider) Close() error { return nil }
