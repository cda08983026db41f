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

// Package vector persists per-repository chunk indexes and serves
// cosine-similarity search over them.
//
// Each repository gets a single gob file under the databases directory.
// Loading reconciles vector dimensions: mixed corpora (partial re-embeds,
// embedder upgrades) keep the dominant dimension and drop the rest rather
// than refusing to load or corrupting similarity.
package vector

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrNoValidEmbeddings is returned when dimension reconciliation leaves an
// index with no usable chunks.
var ErrNoValidEmbeddings = errors.New("no valid embeddings remain after dimension reconciliation")

// Chunk is one embedded slice of a source file.
type Chunk struct {
	ID         uuid.UUID
	RepoID     string
	SourcePath string
	Text       string
	TokenCount int
	Ordinal    int
	Vector     []float32
}

// RepositoryIndex is the persisted unit: every chunk of one repository plus
// the dimension they were reconciled to.
type RepositoryIndex struct {
	RepoID    string
	Chunks    []Chunk
	Dimension int
	BuiltAt   time.Time
}

// Store reads and writes repository indexes under a single directory,
// one gob file per repo_id.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save, not here, so a read-only caller never mutates the filesystem.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the persistence file for a repository.
func (s *Store) Path(repoID string) string {
	return filepath.Join(s.dir, repoID+".gob")
}

// Exists reports whether a non-empty persisted index is present.
func (s *Store) Exists(repoID string) bool {
	info, err := os.Stat(s.Path(repoID))
	return err == nil && info.Size() > 0
}

// Save persists an index atomically: encode to a temp file in the same
// directory, then rename over the target. A crash mid-write never leaves a
// truncated index behind.
func (s *Store) Save(idx *RepositoryIndex) error {
	if idx == nil || idx.RepoID == "" {
		return fmt.Errorf("cannot save index without a repo id")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create databases directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, idx.RepoID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode index for %s: %w", idx.RepoID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush index for %s: %w", idx.RepoID, err)
	}

	if err := os.Rename(tmpName, s.Path(idx.RepoID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to persist index for %s: %w", idx.RepoID, err)
	}
	return nil
}

// Load reads a persisted index and reconciles its vector dimensions.
// Chunks whose dimension differs from the dominant one are dropped with a
// warning naming the offending source path. ErrNoValidEmbeddings is
// returned when nothing survives.
func (s *Store) Load(repoID string) (*RepositoryIndex, error) {
	f, err := os.Open(s.Path(repoID))
	if err != nil {
		return nil, fmt.Errorf("failed to open index for %s: %w", repoID, err)
	}
	defer f.Close()

	var idx RepositoryIndex
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("failed to decode index for %s: %w", repoID, err)
	}

	kept, dim, err := Reconcile(idx.Chunks)
	if err != nil {
		return nil, fmt.Errorf("index for %s is unusable: %w", repoID, err)
	}
	idx.Chunks = kept
	idx.Dimension = dim
	return &idx, nil
}

// Delete removes the persisted index. Missing files are not an error, so
// re-ingestion flows can call this unconditionally.
func (s *Store) Delete(repoID string) error {
	err := os.Remove(s.Path(repoID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete index for %s: %w", repoID, err)
	}
	return nil
}

// Reconcile computes the dominant dimension (most frequent among non-empty
// vectors) and returns only the chunks matching it, preserving order.
// Dropped chunks are logged per source path. Returns ErrNoValidEmbeddings
// when no chunk carries a usable vector.
func Reconcile(chunks []Chunk) ([]Chunk, int, error) {
	counts := make(map[int]int)
	for _, c := range chunks {
		if len(c.Vector) > 0 {
			counts[len(c.Vector)]++
		}
	}
	if len(counts) == 0 {
		return nil, 0, ErrNoValidEmbeddings
	}

	dominant := 0
	for dim, n := range counts {
		// Smaller dimension wins an exact tie so the outcome is
		// deterministic across runs.
		if n > counts[dominant] || (n == counts[dominant] && dim < dominant) {
			dominant = dim
		}
	}

	kept := make([]Chunk, 0, len(chunks))
	dropped := make(map[string]int)
	for _, c := range chunks {
		if len(c.Vector) == dominant {
			kept = append(kept, c)
			continue
		}
		dropped[c.SourcePath]++
	}
	for path, n := range dropped {
		slog.Warn("Dropping chunks with mismatched embedding dimension",
			"source_path", path,
			"chunks", n,
			"expected_dimension", dominant)
	}

	if len(kept) == 0 {
		return nil, 0, ErrNoValidEmbeddings
	}
	return kept, dominant, nil
}
