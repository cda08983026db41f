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

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/repochat/pkg/engine"
	"github.com/kadirpekel/repochat/pkg/llms"
	"github.com/kadirpekel/repochat/pkg/repo"
)

// doneSentinel terminates every chat stream, exactly once.
const doneSentinel = "\n\n[DONE]\n"

// chatRequest is the streaming endpoint payload. repo_url accepts a
// single URL or an array; the four filter fields are newline-separated
// lists.
type chatRequest struct {
	RepoURL  repoURLs      `json:"repo_url"`
	Messages []chatMessage `json:"messages"`
	FilePath string        `json:"filePath,omitempty"`
	Token    string        `json:"token,omitempty"`
	Type     string        `json:"type,omitempty"`
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
	Language string        `json:"language,omitempty"`

	ExcludedDirs  string `json:"excluded_dirs,omitempty"`
	ExcludedFiles string `json:"excluded_files,omitempty"`
	IncludedDirs  string `json:"included_dirs,omitempty"`
	IncludedFiles string `json:"included_files,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// repoURLs unmarshals from either a JSON string or an array of strings.
type repoURLs []string

func (r *repoURLs) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = repoURLs{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("repo_url must be a string or an array of strings")
	}
	*r = many
	return nil
}

// descriptors validates the repository fields and builds one descriptor
// per URL, each carrying the shared credential and filter overrides.
func (p *chatRequest) descriptors() ([]*repo.Descriptor, error) {
	kind, err := repo.ParseHostKind(p.Type)
	if err != nil {
		return nil, &engine.Error{Kind: engine.KindValidation, Op: "parse repository type", Err: err}
	}
	if len(p.RepoURL) == 0 {
		return nil, &engine.Error{Kind: engine.KindValidation, Op: "parse repository", Err: fmt.Errorf("repo_url is required")}
	}

	descs := make([]*repo.Descriptor, 0, len(p.RepoURL))
	for _, raw := range p.RepoURL {
		d, err := repo.ParseLocator(raw, kind)
		if err != nil {
			return nil, &engine.Error{Kind: engine.KindValidation, Op: "parse repository", Err: err}
		}
		d.Credential = p.Token
		d.ExcludeDirs = splitFilterList(p.ExcludedDirs)
		d.ExcludeFiles = splitFilterList(p.ExcludedFiles)
		d.IncludeDirs = splitFilterList(p.IncludedDirs)
		d.IncludeFiles = splitFilterList(p.IncludedFiles)
		descs = append(descs, d)
	}
	return descs, nil
}

// transcript converts the payload messages to provider messages.
func (p *chatRequest) transcript() ([]llms.Message, error) {
	msgs := make([]llms.Message, 0, len(p.Messages))
	for i, m := range p.Messages {
		var role llms.Role
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "user":
			role = llms.RoleUser
		case "assistant":
			role = llms.RoleAssistant
		default:
			return nil, &engine.Error{
				Kind: engine.KindValidation,
				Op:   "parse messages",
				Err:  fmt.Errorf("message %d has unsupported role %q (need user or assistant)", i, m.Role),
			}
		}
		msgs = append(msgs, llms.Message{Role: role, Content: m.Content})
	}
	return msgs, nil
}

// splitFilterList turns a newline-separated filter string into entries,
// dropping blanks.
func splitFilterList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// handleChatStream answers a chat request as a plain-text stream. Setup
// failures (validation, credentials, acquisition, ingestion) return a
// JSON error before any body byte; after that, everything including
// provider failures arrives in-stream, terminated by one [DONE] line.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, &engine.Error{Kind: engine.KindValidation, Op: "decode request", Err: err})
		return
	}

	descs, err := payload.descriptors()
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := payload.transcript()
	if err != nil {
		writeError(w, err)
		return
	}

	req := &engine.QueryRequest{
		Messages:   messages,
		PinnedFile: payload.FilePath,
		Provider:   payload.Provider,
		Model:      payload.Model,
		Language:   payload.Language,
	}

	ctx := r.Context()
	eng := s.currentEngine()
	start := time.Now()

	stream, err := eng.FanOut(ctx, descs, req, fanOutParallel)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	var streamErr error
	for chunk := range stream.C {
		switch chunk.Type {
		case llms.ChunkTypeText:
			// A failed write means the client is gone; the request
			// context cancels and the engine stream closes on its own.
			_, _ = io.WriteString(w, chunk.Text)
			if flusher != nil {
				flusher.Flush()
			}
		case llms.ChunkTypeError:
			streamErr = chunk.Err
			_, _ = fmt.Fprintf(w, "\n\nError: %v", chunk.Err)
		}
	}

	_, _ = io.WriteString(w, doneSentinel)
	if flusher != nil {
		flusher.Flush()
	}

	result := stream.Result()
	s.obs.Metrics().RecordQuery(ctx, time.Since(start), result.TokensUsed, streamErr)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError renders a pre-stream failure as a structured JSON error.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kindStatus(err))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
		Kind:    engine.KindOf(err).String(),
		Message: err.Error(),
	}})
}

func kindStatus(err error) int {
	switch engine.KindOf(err) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindProviderAuth:
		return http.StatusUnauthorized
	case engine.KindAcquisition:
		return http.StatusBadGateway
	case engine.KindIngestion:
		return http.StatusUnprocessableEntity
	case engine.KindTokenLimit:
		return http.StatusRequestEntityTooLarge
	case engine.KindProviderTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
