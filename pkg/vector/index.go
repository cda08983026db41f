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

package vector

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

// Index is an in-memory cosine-similarity index over one repository's
// reconciled chunks. Vectors are precomputed by the embedder, so the
// chromem collection runs with an identity embedding function that must
// never be reached.
type Index struct {
	chunks     []Chunk
	dimension  int
	collection *chromem.Collection
}

// SearchHit pairs a chunk position with its similarity score. Scores are
// opaque beyond their ordering.
type SearchHit struct {
	ChunkIndex int
	Score      float32
}

// BuildIndex loads reconciled chunks into a fresh chromem collection.
// Every chunk must already match dim; callers reconcile first.
func BuildIndex(ctx context.Context, chunks []Chunk, dim int) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("cannot build an index over zero chunks")
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are precomputed")
	}

	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("chunks", nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) != dim {
			return nil, fmt.Errorf("chunk %d of %s has dimension %d, index expects %d",
				c.Ordinal, c.SourcePath, len(c.Vector), dim)
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   c.Text,
			Embedding: c.Vector,
			Metadata: map[string]string{
				"source_path": c.SourcePath,
				"ordinal":     strconv.Itoa(c.Ordinal),
			},
		})
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}

	return &Index{chunks: chunks, dimension: dim, collection: col}, nil
}

// Search returns up to topK hits ordered by descending similarity. Ties are
// broken by chunk position so identical inputs always produce identical
// output.
func (x *Index) Search(ctx context.Context, queryVec []float32, topK int) ([]SearchHit, error) {
	if len(queryVec) != x.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, index expects %d",
			len(queryVec), x.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}
	if topK > len(x.chunks) {
		topK = len(x.chunks)
	}

	results, err := x.collection.QueryEmbedding(ctx, queryVec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil || idx < 0 || idx >= len(x.chunks) {
			return nil, fmt.Errorf("index returned unknown document id %q", r.ID)
		}
		hits = append(hits, SearchHit{ChunkIndex: idx, Score: r.Similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	return hits, nil
}

// Chunk returns the chunk at a search hit's position.
func (x *Index) Chunk(i int) Chunk {
	return x.chunks[i]
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	return len(x.chunks)
}

// Dimension returns the vector dimension the index was built with.
func (x *Index) Dimension() int {
	return x.dimension
}
