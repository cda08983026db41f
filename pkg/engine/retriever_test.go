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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/repochat/pkg/databases"
	"github.com/kadirpekel/repochat/pkg/llms"
)

// fakeDatabase keeps collections in memory and serves Search in insert
// order, which is enough to exercise the remote retrieval path.
type fakeDatabase struct {
	mu          sync.Mutex
	collections map[string]uint64
	points      map[string][]databases.Point
	closed      bool
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		collections: make(map[string]uint64),
		points:      make(map[string][]databases.Point),
	}
}

func (f *fakeDatabase) CreateCollection(_ context.Context, collection string, vectorSize uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[collection] = vectorSize
	return nil
}

func (f *fakeDatabase) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]interface{}) error {
	return f.UpsertBatch(ctx, collection, []databases.Point{{ID: id, Vector: vector, Metadata: metadata}})
}

func (f *fakeDatabase) UpsertBatch(_ context.Context, collection string, points []databases.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[collection]; !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakeDatabase) Search(_ context.Context, collection string, _ []float32, topK int) ([]databases.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.points[collection]
	if len(stored) > topK {
		stored = stored[:topK]
	}
	results := make([]databases.SearchResult, 0, len(stored))
	for _, p := range stored {
		content, _ := p.Metadata["content"].(string)
		results = append(results, databases.SearchResult{
			ID:       p.ID,
			Score:    0.9,
			Content:  content,
			Metadata: p.Metadata,
		})
	}
	return results, nil
}

func (f *fakeDatabase) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, _ map[string]interface{}) ([]databases.SearchResult, error) {
	return f.Search(ctx, collection, vector, topK)
}

func (f *fakeDatabase) Delete(context.Context, string, string) error { return nil }

func (f *fakeDatabase) DeleteCollection(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, collection)
	delete(f.points, collection)
	return nil
}

func (f *fakeDatabase) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDatabase) stored(collection string) []databases.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]databases.Point(nil), f.points[collection]...)
}

func TestQueryExternalStoreMirrorsAndSearches(t *testing.T) {
	db := newFakeDatabase()
	provider := &fakeProvider{respond: func(*llms.Request) string { return "it listens on 8080" }}
	eng := newTestEngine(t, provider, WithDatabaseProvider(db))
	desc := writeTestRepo(t, "widgets")

	res, err := eng.Run(context.Background(), newChatRequest(desc,
		user("what port does the server use?"),
	))
	require.NoError(t, err)
	assert.Equal(t, "it listens on 8080", res.Text)
	assert.Greater(t, res.DocumentsRetrieved, 0)

	// Ingestion mirrored every chunk with its retrieval metadata.
	require.Contains(t, db.collections, "widgets")
	points := db.stored("widgets")
	require.NotEmpty(t, points)
	for _, p := range points {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Vector)
		assert.NotEmpty(t, p.Metadata["content"])
		assert.NotEmpty(t, p.Metadata["source_path"])
	}

	// Retrieved context reached the generator from the remote search.
	reqs := provider.recorded()
	require.Len(t, reqs, 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1].Content
	assert.Contains(t, last, "## Retrieved context")
	assert.Contains(t, last, "port 8080")
}

func TestInvalidateRepoDropsRemoteCollection(t *testing.T) {
	db := newFakeDatabase()
	eng := newTestEngine(t, &fakeProvider{}, WithDatabaseProvider(db))
	desc := writeTestRepo(t, "widgets")

	_, err := eng.Run(context.Background(), newChatRequest(desc, user("anything?")))
	require.NoError(t, err)
	require.Contains(t, db.collections, "widgets")

	require.NoError(t, eng.InvalidateRepo("widgets"))
	assert.NotContains(t, db.collections, "widgets")
	assert.Empty(t, db.stored("widgets"))
}

func TestMetadataIntHandlesWireTypes(t *testing.T) {
	assert.Equal(t, 7, metadataInt(7))
	assert.Equal(t, 7, metadataInt(int64(7)))
	assert.Equal(t, 7, metadataInt(float64(7)))
	assert.Equal(t, 0, metadataInt(nil))
	assert.Equal(t, 0, metadataInt("7"))
}
