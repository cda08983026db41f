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
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/wikicache"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type providerEntry struct {
	ID                  string   `json:"id"`
	DefaultModel        string   `json:"defaultModel"`
	SupportsCustomModel bool     `json:"supportsCustomModel,omitempty"`
	Models              []string `json:"models"`
}

type modelsConfigResponse struct {
	DefaultProvider string          `json:"defaultProvider"`
	Providers       []providerEntry `json:"providers"`
}

// handleModelsConfig lists the provider catalog so a frontend can
// populate its model picker.
func (s *Server) handleModelsConfig(w http.ResponseWriter, r *http.Request) {
	gen := s.currentConfig().Generator

	resp := modelsConfigResponse{
		DefaultProvider: gen.DefaultProvider,
		Providers:       make([]providerEntry, 0, len(gen.Providers)),
	}
	for id, p := range gen.Providers {
		models := make([]string, 0, len(p.Models))
		for name := range p.Models {
			models = append(models, name)
		}
		sort.Strings(models)
		resp.Providers = append(resp.Providers, providerEntry{
			ID:                  id,
			DefaultModel:        p.DefaultModel,
			SupportsCustomModel: p.SupportsCustomModel,
			Models:              models,
		})
	}
	sort.Slice(resp.Providers, func(i, j int) bool { return resp.Providers[i].ID < resp.Providers[j].ID })

	writeJSON(w, http.StatusOK, resp)
}

type langConfigResponse struct {
	SupportedLanguages map[string]string `json:"supported_languages"`
	Default            string            `json:"default"`
}

func (s *Server) handleLangConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, langConfigResponse{
		SupportedLanguages: config.SupportedLanguages,
		Default:            config.DefaultLanguage,
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"auth_required": config.AuthRequired()})
}

// handleAuthValidate checks a submitted access code. The comparison is
// the whole gate; session state lives in the frontend.
func (s *Server) handleAuthValidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": config.ValidateAuthCode(body.Code)})
}

type wikiEntryResponse struct {
	Owner      string    `json:"owner"`
	Repo       string    `json:"repo"`
	Language   string    `json:"language"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

func (s *Server) handleWikiList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.wiki.List()
	if err != nil {
		slog.Error("Failed to list wiki cache", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list wiki cache"})
		return
	}

	resp := make([]wikiEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, wikiEntryResponse{
			Owner:      e.Key.Owner,
			Repo:       e.Key.Repo,
			Language:   e.Key.Language,
			Size:       e.Size,
			ModifiedAt: e.ModifiedAt,
		})
	}
	sort.Slice(resp, func(i, j int) bool {
		if resp[i].Owner != resp[j].Owner {
			return resp[i].Owner < resp[j].Owner
		}
		if resp[i].Repo != resp[j].Repo {
			return resp[i].Repo < resp[j].Repo
		}
		return resp[i].Language < resp[j].Language
	})
	writeJSON(w, http.StatusOK, resp)
}

func wikiKeyFromRequest(r *http.Request) wikicache.Key {
	return wikicache.Key{
		Owner:    chi.URLParam(r, "owner"),
		Repo:     chi.URLParam(r, "repo"),
		Language: chi.URLParam(r, "language"),
	}
}

func (s *Server) handleWikiGet(w http.ResponseWriter, r *http.Request) {
	key := wikiKeyFromRequest(r)
	blob, err := s.wiki.Get(key)
	switch {
	case errors.Is(err, wikicache.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "wiki cache entry not found"})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(blob)
}

func (s *Server) handleWikiDelete(w http.ResponseWriter, r *http.Request) {
	key := wikiKeyFromRequest(r)
	if err := s.wiki.Delete(key); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
