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

package engine

import (
	"context"
	"fmt"

	"github.com/kadirpekel/repochat/pkg/databases"
	"github.com/kadirpekel/repochat/pkg/vector"
)

// retriever materializes the chunks most similar to a query vector. The
// default backend is the in-process index; the qdrant and pinecone
// vector_store types serve search from an external cluster instead.
type retriever interface {
	Retrieve(ctx context.Context, queryVec []float32, topK int) ([]vector.Chunk, error)
}

// localRetriever searches the in-process index built from the persisted
// repository index.
type localRetriever struct {
	idx *vector.Index
}

func (r *localRetriever) Retrieve(ctx context.Context, queryVec []float32, topK int) ([]vector.Chunk, error) {
	hits, err := r.idx.Search(ctx, queryVec, topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]vector.Chunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, r.idx.Chunk(h.ChunkIndex))
	}
	return chunks, nil
}

// remoteRetriever searches an external vector database, one collection
// per repository.
type remoteRetriever struct {
	db         databases.DatabaseProvider
	collection string
}

func (r *remoteRetriever) Retrieve(ctx context.Context, queryVec []float32, topK int) ([]vector.Chunk, error) {
	results, err := r.db.Search(ctx, r.collection, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", r.collection, err)
	}
	chunks := make([]vector.Chunk, 0, len(results))
	for _, res := range results {
		c := vector.Chunk{RepoID: r.collection, Text: res.Content}
		if sp, ok := res.Metadata["source_path"].(string); ok {
			c.SourcePath = sp
		}
		c.Ordinal = metadataInt(res.Metadata["ordinal"])
		c.TokenCount = metadataInt(res.Metadata["token_count"])
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// syncBatchSize bounds points per upsert round trip.
const syncBatchSize = 200

// syncRemote mirrors a reconciled index into the external store. Point
// IDs are the chunk IDs, so re-running after a partial push converges
// instead of duplicating.
func syncRemote(ctx context.Context, db databases.DatabaseProvider, idx *vector.RepositoryIndex) error {
	if err := db.CreateCollection(ctx, idx.RepoID, uint64(idx.Dimension)); err != nil {
		return fmt.Errorf("preparing collection %s: %w", idx.RepoID, err)
	}

	for start := 0; start < len(idx.Chunks); start += syncBatchSize {
		end := min(start+syncBatchSize, len(idx.Chunks))
		points := make([]databases.Point, 0, end-start)
		for _, c := range idx.Chunks[start:end] {
			points = append(points, databases.Point{
				ID:     c.ID.String(),
				Vector: c.Vector,
				Metadata: map[string]interface{}{
					"content":     c.Text,
					"source_path": c.SourcePath,
					"ordinal":     c.Ordinal,
					"token_count": c.TokenCount,
				},
			})
		}
		if err := db.UpsertBatch(ctx, idx.RepoID, points); err != nil {
			return fmt.Errorf("pushing chunks to collection %s: %w", idx.RepoID, err)
		}
	}
	return nil
}

// metadataInt reads an integer that may round-trip as int64 (qdrant),
// float64 (pinecone structpb), or int (tests).
func metadataInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
