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

package databases

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/repochat/pkg/config"
)

// pineconeProvider maps collections onto namespaces within a single
// pinecone index. Indexes are provisioned out of band; only the index
// name is configured here.
type pineconeProvider struct {
	client    *pinecone.Client
	indexName string
	namespace string

	mu   sync.Mutex
	host string
}

func NewPineconeProviderFromConfig(cfg *config.VectorStoreConfig) (DatabaseProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for pinecone")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index_name is required for pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
		Host:   cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	return &pineconeProvider{
		client:    client,
		indexName: cfg.IndexName,
		namespace: cfg.Namespace,
	}, nil
}

// resolveNamespace picks the namespace for a collection. A configured
// namespace pins everything to one; otherwise each collection gets its
// own.
func (db *pineconeProvider) resolveNamespace(collection string) string {
	if db.namespace != "" {
		return db.namespace
	}
	return collection
}

// indexHost resolves and caches the index's data-plane host.
func (db *pineconeProvider) indexHost(ctx context.Context) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.host != "" {
		return db.host, nil
	}
	index, err := db.client.DescribeIndex(ctx, db.indexName)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %s: %w", db.indexName, err)
	}
	db.host = index.Host
	return db.host, nil
}

func (db *pineconeProvider) connect(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	host, err := db.indexHost(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := db.client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: db.resolveNamespace(collection),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return conn, nil
}

// CreateCollection verifies the configured index exists. Namespaces
// materialize on first upsert, so there is nothing to provision per
// collection.
func (db *pineconeProvider) CreateCollection(ctx context.Context, collection string, vectorSize uint64) error {
	indexes, err := db.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx.Name == db.indexName {
			return nil
		}
	}
	return fmt.Errorf("index %s does not exist; create it via the pinecone console or API", db.indexName)
}

func (db *pineconeProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]interface{}) error {
	return db.UpsertBatch(ctx, collection, []Point{{ID: id, Vector: vector, Metadata: metadata}})
}

func (db *pineconeProvider) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	conn, err := db.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(points))
	for _, p := range points {
		var metadata *pinecone.Metadata
		if len(p.Metadata) > 0 {
			metadata, err = structpb.NewStruct(p.Metadata)
			if err != nil {
				return fmt.Errorf("failed to convert metadata: %w", err)
			}
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       p.ID,
			Values:   p.Vector,
			Metadata: metadata,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert %d vectors: %w", len(vectors), err)
	}
	return nil
}

func (db *pineconeProvider) Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]SearchResult, error) {
	return db.SearchWithFilter(ctx, collection, queryVector, topK, nil)
}

func (db *pineconeProvider) SearchWithFilter(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error) {
	conn, err := db.connect(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metadataFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to convert filter: %w", err)
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          queryVector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query pinecone: %w", err)
	}
	return convertPineconeResults(resp.Matches), nil
}

func convertPineconeResults(matches []*pinecone.ScoredVector) []SearchResult {
	results := make([]SearchResult, 0, len(matches))
	for _, scored := range matches {
		if scored.Vector == nil {
			continue
		}

		metadata := make(map[string]interface{})
		if scored.Vector.Metadata != nil {
			metadata = scored.Vector.Metadata.AsMap()
		}
		content, _ := metadata["content"].(string)

		results = append(results, SearchResult{
			ID:       scored.Vector.Id,
			Content:  content,
			Metadata: metadata,
			Score:    scored.Score,
		})
	}
	return results
}

func (db *pineconeProvider) Delete(ctx context.Context, collection string, id string) error {
	conn, err := db.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	return nil
}

// DeleteCollection clears the collection's namespace. The index itself
// stays.
func (db *pineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	conn, err := db.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", db.resolveNamespace(collection), err)
	}
	return nil
}

func (db *pineconeProvider) Close() error {
	// The pinecone client holds no long-lived connection of its own.
	return nil
}
