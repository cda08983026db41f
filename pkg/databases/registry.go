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

// Package databases provides external vector database backends for
// repository indexes. The default in-process backend lives in
// pkg/vector; this package covers the qdrant and pinecone options of
// the vector_store config section, one logical collection per
// repository.
package databases

import (
	"context"
	"fmt"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/registry"
)

// Point is one embedded chunk ready for upsert.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// SearchResult is one scored match from a backend.
type SearchResult struct {
	ID       string                 `json:"id"`
	Score    float32                `json:"score"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DatabaseProvider is the backend contract. Collections are keyed by
// repository ID; backends map that onto their own grouping primitive.
type DatabaseProvider interface {
	// CreateCollection prepares storage for a repository's vectors.
	// Calling it for an existing collection is a no-op.
	CreateCollection(ctx context.Context, collection string, vectorSize uint64) error

	// Upsert writes a single point.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]interface{}) error

	// UpsertBatch writes many points in one round trip.
	UpsertBatch(ctx context.Context, collection string, points []Point) error

	// Search returns the topK nearest points by cosine similarity.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	// SearchWithFilter restricts matches to points whose metadata
	// equals every filter entry.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error)

	// Delete removes a single point.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteCollection removes a repository's vectors entirely.
	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}

// NewProviderFromConfig builds the backend named by cfg.Type. The
// "memory" type never reaches this factory; callers handle it with the
// in-process index.
func NewProviderFromConfig(cfg *config.VectorStoreConfig) (DatabaseProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector store config cannot be nil")
	}
	switch cfg.Type {
	case "qdrant":
		return NewQdrantProviderFromConfig(cfg)
	case "pinecone":
		return NewPineconeProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: qdrant, pinecone)", cfg.Type)
	}
}

// DatabaseRegistry tracks constructed backends by name so a server
// can share one connection per configured store.
type DatabaseRegistry struct {
	*registry.BaseRegistry[DatabaseProvider]
}

func NewDatabaseRegistry() *DatabaseRegistry {
	return &DatabaseRegistry{
		BaseRegistry: registry.NewBaseRegistry[DatabaseProvider](),
	}
}

func (r *DatabaseRegistry) RegisterDatabase(name string, provider DatabaseProvider) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("database provider cannot be nil")
	}
	return r.Register(name, provider)
}

func (r *DatabaseRegistry) CreateDatabaseFromConfig(name string, cfg *config.VectorStoreConfig) (DatabaseProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}
	provider, err := NewProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database provider: %w", err)
	}
	if err := r.RegisterDatabase(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register database: %w", err)
	}
	return provider, nil
}

func (r *DatabaseRegistry) GetDatabase(name string) (DatabaseProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("database provider '%s' not found", name)
	}
	return provider, nil
}
