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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/embedders"
	"github.com/kadirpekel/repochat/pkg/rag"
	"github.com/kadirpekel/repochat/pkg/repo"
	"github.com/kadirpekel/repochat/pkg/vector"
)

// IngestCmd builds the vector index for a repository without answering a
// question, so the first query is fast.
type IngestCmd struct {
	Repo string `arg:"" help:"Repository URL or local path."`

	Type  string `help:"Repository host (github, gitlab, bitbucket, local)." default:"github"`
	Token string `help:"Access token for private repositories."`

	IncludeDir  []string `name:"include-dir" help:"Only ingest files under these directories."`
	IncludeFile []string `name:"include-file" help:"Only ingest files with these name suffixes."`
	ExcludeDir  []string `name:"exclude-dir" help:"Skip these directories (adds to defaults)."`
	ExcludeFile []string `name:"exclude-file" help:"Skip these file names (adds to defaults)."`

	Force bool `help:"Delete any persisted index and re-ingest from scratch."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	kind, err := repo.ParseHostKind(c.Type)
	if err != nil {
		return err
	}
	desc, err := repo.ParseLocator(c.Repo, kind)
	if err != nil {
		return err
	}
	desc.Credential = c.Token
	desc.IncludeDirs = c.IncludeDir
	desc.IncludeFiles = c.IncludeFile
	desc.ExcludeDirs = c.ExcludeDir
	desc.ExcludeFiles = c.ExcludeFile

	embedder, err := embedders.NewEmbedder(&cfg.Embedder.Embedder)
	if err != nil {
		return fmt.Errorf("embedder init failed: %w", err)
	}
	defer embedder.Close()

	store := vector.NewStore(config.DatabasesDir())
	if c.Force {
		if err := store.Delete(desc.RepoID()); err != nil {
			return fmt.Errorf("failed to remove persisted index: %w", err)
		}
	}

	ingestor := rag.NewIngestor(cfg, repo.NewAcquirer(config.ReposDir()), embedder, store)
	idx, err := ingestor.Ingest(ctx, desc)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %s: %d chunks, dimension %d\n", idx.RepoID, len(idx.Chunks), idx.Dimension)
	fmt.Printf("Index: %s\n", store.Path(idx.RepoID))
	return nil
}
