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

// Package rag implements the ingestion pipeline: walk an acquired
// repository tree, split admitted files into token-bounded chunks, embed
// them in batches, reconcile vector dimensions, and persist one index per
// repository. A persisted index is reused as-is; re-ingestion happens
// only when the persist file is deleted.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/embedders"
	"github.com/kadirpekel/repochat/pkg/repo"
	"github.com/kadirpekel/repochat/pkg/tokens"
	"github.com/kadirpekel/repochat/pkg/vector"
)

const defaultEmbedWorkers = 4

// Ingestor drives the clone-to-index pipeline for one embedder
// configuration. Safe for concurrent use across repositories; concurrent
// ingestion of the same repository is serialized by the store's
// single-writer rename.
type Ingestor struct {
	acquirer  *repo.Acquirer
	embedder  embedders.Embedder
	store     *vector.Store
	counter   *tokens.Counter
	chunker   *Chunker
	defaults  config.FileFilterConfig
	batchSize int
	workers   int

	observe IngestObserver
}

// IngestObserver receives pipeline progress counts. The zero value
// disables observation.
type IngestObserver func(repoID string, files, chunks int)

type IngestorOption func(*Ingestor)

// WithEmbedWorkers bounds the number of files embedded concurrently.
func WithEmbedWorkers(n int) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.workers = n
		}
	}
}

// WithIngestObserver wires a metrics callback invoked once per completed
// ingestion.
func WithIngestObserver(fn IngestObserver) IngestorOption {
	return func(ing *Ingestor) {
		ing.observe = fn
	}
}

func NewIngestor(cfg *config.Config, acquirer *repo.Acquirer, embedder embedders.Embedder, store *vector.Store, opts ...IngestorOption) *Ingestor {
	family := tokens.FamilyBPE
	if cfg.Embedder.Embedder.Provider == config.ProviderOllama {
		family = tokens.FamilyLocal
	}
	counter := tokens.NewCounter(family)

	batchSize := cfg.Embedder.Embedder.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	ing := &Ingestor{
		acquirer:  acquirer,
		embedder:  embedder,
		store:     store,
		counter:   counter,
		chunker:   NewChunker(cfg.Embedder.TextSplitter, counter),
		defaults:  cfg.Repo.FileFilters,
		batchSize: batchSize,
		workers:   defaultEmbedWorkers,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// fileChunks pairs a walked file with its chunks; a file whose embedding
// fails has its chunks dropped in place.
type fileChunks struct {
	record FileRecord
	chunks []vector.Chunk
}

// Ingest returns the repository's index, building and persisting it when
// no usable persisted index exists.
func (ing *Ingestor) Ingest(ctx context.Context, desc *repo.Descriptor) (*vector.RepositoryIndex, error) {
	repoID := desc.RepoID()

	if ing.store.Exists(repoID) {
		idx, err := ing.store.Load(repoID)
		if err == nil && len(idx.Chunks) > 0 {
			slog.Info("Reusing persisted index", "repo", repoID, "chunks", len(idx.Chunks))
			return idx, nil
		}
		slog.Warn("Persisted index unusable, rebuilding", "repo", repoID, "error", err)
	}

	treePath, err := ing.acquirer.Acquire(ctx, desc)
	if err != nil {
		return nil, err
	}

	filters := NewFilters(desc.IncludeDirs, desc.IncludeFiles, desc.ExcludeDirs, desc.ExcludeFiles, ing.defaults)
	records, err := Walk(ctx, treePath, filters, ing.counter)
	if err != nil {
		return nil, fmt.Errorf("walking repository tree: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no ingestible files found in repository %s", repoID)
	}

	files := make([]fileChunks, 0, len(records))
	totalChunks := 0
	for _, rec := range records {
		chunks := ing.chunker.Chunk(rec)
		for i := range chunks {
			chunks[i].RepoID = repoID
		}
		files = append(files, fileChunks{record: rec, chunks: chunks})
		totalChunks += len(chunks)
	}

	slog.Info("Ingesting repository",
		"repo", repoID,
		"files", len(files),
		"chunks", totalChunks,
		"embedder", ing.embedder.GetModelName())

	if err := ing.embedAll(ctx, files); err != nil {
		return nil, err
	}

	var all []vector.Chunk
	dropped := 0
	for _, fc := range files {
		if fc.chunks == nil {
			dropped++
			continue
		}
		all = append(all, fc.chunks...)
	}
	if dropped > 0 {
		slog.Warn("Some files were dropped during embedding", "repo", repoID, "dropped", dropped)
	}

	reconciled, dimension, err := vector.Reconcile(all)
	if err != nil {
		return nil, fmt.Errorf("reconciling embeddings for %s: %w", repoID, err)
	}

	idx := &vector.RepositoryIndex{
		RepoID:    repoID,
		Chunks:    reconciled,
		Dimension: dimension,
		BuiltAt:   time.Now(),
	}
	if err := ing.store.Save(idx); err != nil {
		return nil, fmt.Errorf("persisting index for %s: %w", repoID, err)
	}

	slog.Info("Repository ingested", "repo", repoID, "chunks", len(reconciled), "dimension", dimension)
	if ing.observe != nil {
		ing.observe(repoID, len(files)-dropped, len(reconciled))
	}
	return idx, nil
}

// embedAll embeds every file's chunks with a bounded worker pool. A
// failure scoped to one file drops that file; a provider-level failure
// aborts the whole ingestion so no partial index is written.
func (ing *Ingestor) embedAll(ctx context.Context, files []fileChunks) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)

	// Workers write disjoint slots of files, so no lock is needed.
	for i := range files {
		g.Go(func() error {
			err := ing.embedFile(gctx, &files[i])
			if err == nil {
				return nil
			}
			if providerUnavailable(err) {
				return fmt.Errorf("embedding provider unavailable: %w", err)
			}
			slog.Warn("Dropping file, embedding failed",
				"path", files[i].record.SourcePath, "error", err)
			files[i].chunks = nil
			return nil
		})
	}
	return g.Wait()
}

func (ing *Ingestor) embedFile(ctx context.Context, fc *fileChunks) error {
	for start := 0; start < len(fc.chunks); start += ing.batchSize {
		end := min(start+ing.batchSize, len(fc.chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range fc.chunks[start:end] {
			texts = append(texts, ch.Text)
		}

		vectors, err := ing.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vectors {
			fc.chunks[start+i].Vector = v
		}
	}
	return nil
}

// providerUnavailable classifies errors that doom every file equally:
// network-level failures, cancellation, and embedder setup problems like
// a missing local model. Anything else is treated as file-scoped.
func providerUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"no such host",
		"server unreachable",
		"ollama pull",
		"cannot verify ollama model availability",
		"requires an API key",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
