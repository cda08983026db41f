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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/engine"
	"github.com/kadirpekel/repochat/pkg/llms"
	"github.com/kadirpekel/repochat/pkg/repo"
)

// ChatCmd runs an interactive question-answering session against one
// repository. Each answer streams to stdout as the provider generates it.
type ChatCmd struct {
	Repo string `arg:"" help:"Repository URL or local path."`

	Type     string `help:"Repository host (github, gitlab, bitbucket, local)." default:"github"`
	Token    string `help:"Access token for private repositories."`
	Provider string `help:"Generator provider (defaults to the configured default)."`
	Model    string `help:"Model name (defaults to the provider's default)."`
	Language string `help:"Response language code (e.g. en, ja, zh)."`
	File     string `name:"file" help:"Repository file whose full contents are pinned into every prompt."`

	DeepResearch bool `name:"deep-research" help:"Run multi-turn deep research instead of direct answers."`

	Question string `short:"q" help:"Ask a single question and exit instead of starting a session."`
}

func (c *ChatCmd) Run(cli *CLI) error {
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

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if c.Question != "" {
		_, err := c.ask(ctx, eng, desc, []llms.Message{
			{Role: llms.RoleUser, Content: c.tagged(c.Question)},
		})
		return err
	}
	return c.session(ctx, eng, desc)
}

// session reads questions line by line, resending the accumulated
// transcript so deep-research iteration counting sees every prior turn.
func (c *ChatCmd) session(ctx context.Context, eng *engine.Engine, desc *repo.Descriptor) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("Chatting with %s. Commands: /quit, /clear\n\n", c.Repo)
	}

	var transcript []llms.Message
	reader := bufio.NewReader(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if interactive {
					fmt.Println()
				}
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/clear":
			transcript = nil
			eng.Sessions().Conversation(desc.RepoID()).Clear()
			fmt.Println("Conversation cleared.")
			continue
		}

		transcript = append(transcript, llms.Message{Role: llms.RoleUser, Content: c.tagged(line)})
		answer, err := c.ask(ctx, eng, desc, transcript)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			transcript = transcript[:len(transcript)-1]
			continue
		}
		transcript = append(transcript, llms.Message{Role: llms.RoleAssistant, Content: answer})
		fmt.Println()
	}
}

// ask streams one answer to stdout and returns the accumulated text.
func (c *ChatCmd) ask(ctx context.Context, eng *engine.Engine, desc *repo.Descriptor, transcript []llms.Message) (string, error) {
	stream, err := eng.Query(ctx, &engine.QueryRequest{
		Repo:       desc,
		Messages:   transcript,
		PinnedFile: c.File,
		Provider:   c.Provider,
		Model:      c.Model,
		Language:   c.Language,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range stream.C {
		switch chunk.Type {
		case llms.ChunkTypeText:
			b.WriteString(chunk.Text)
			fmt.Print(chunk.Text)
		case llms.ChunkTypeError:
			fmt.Println()
			return "", chunk.Err
		}
	}
	fmt.Println()
	return b.String(), nil
}

// tagged prefixes the deep-research marker when the mode is on.
func (c *ChatCmd) tagged(question string) string {
	if c.DeepResearch {
		return engine.ResearchMarker + " " + question
	}
	return question
}
