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

// Package llms abstracts chat generation over eight provider families
// behind one streaming contract. Every provider yields text chunks in
// arrival order and exactly one terminal done chunk; providers that
// answer without streaming are wrapped as a single text chunk. Transient
// failures retry with backoff bounded by a 30 second wall clock;
// credential problems fail fast with an environment variable hint and
// never leak the credential itself.
package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a fully assembled generation request. Sampling fields
// override the provider's configured defaults when set.
type Request struct {
	System   string
	Messages []Message

	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// Response is a complete non-streaming answer.
type Response struct {
	Text   string
	Tokens int
}

// Stream chunk types.
const (
	ChunkTypeText  = "text"
	ChunkTypeDone  = "done"
	ChunkTypeError = "error"
)

// StreamChunk is one unit of a provider stream. Text chunks arrive in
// generation order; the stream ends with either a done chunk or an error
// chunk, never both.
type StreamChunk struct {
	Type string
	Text string
	Err  error
}

// Provider is the unified generation contract.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateStreaming returns a channel closed after the terminal
	// chunk. Cancelling ctx releases the underlying connection.
	GenerateStreaming(ctx context.Context, req *Request) (<-chan StreamChunk, error)

	GetModelName() string
	GetMaxTokens() int
	Close() error
}

// Provider-wide timing policy. Local servers get a generous cap because
// CPU inference is slow; cloud APIs must produce headers quickly.
const (
	localProviderTimeout  = 300 * time.Second
	remoteProviderTimeout = 300 * time.Second
	remoteHeaderTimeout   = 30 * time.Second
	retryBudget           = 30 * time.Second
)

// AuthError marks a missing or rejected credential. These are never
// retried and carry the environment variable to set.
type AuthError struct {
	Provider string
	Hint     string
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%s authentication failed", e.Provider)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (set " + e.Hint + ")"
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err stems from a credential problem.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

var tokenLimitMarkers = []string{
	"maximum context length",
	"token limit",
	"too many tokens",
}

// IsTokenLimitError reports whether a provider rejected the request for
// exceeding its context window. The query pipeline retries these with a
// simplified prompt.
func IsTokenLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range tokenLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// scrubSecret removes a credential from text destined for errors or logs.
func scrubSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// singleChunkStream adapts a complete response to the streaming contract:
// one text chunk, then done.
func singleChunkStream(resp *Response, out chan<- StreamChunk) {
	if resp.Text != "" {
		out <- StreamChunk{Type: ChunkTypeText, Text: resp.Text}
	}
	out <- StreamChunk{Type: ChunkTypeDone}
}
